// Package canonicaljson implements RFC 8785 (JCS) JSON canonicalization.
// Pending confirmation payloads are fingerprinted over their canonical form so
// that key order and whitespace never change the digest.
package canonicaljson

import (
	"encoding/json"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// Canonicalize marshals v to JSON and returns its RFC 8785 canonical bytes.
func Canonicalize(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return CanonicalizeRaw(raw)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal: %w", err)
	}
	return CanonicalizeRaw(raw)
}

// CanonicalizeRaw returns the canonical form of already-encoded JSON. Empty
// input canonicalizes to null.
func CanonicalizeRaw(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: transform: %w", err)
	}
	return out, nil
}
