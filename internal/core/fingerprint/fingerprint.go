// Package fingerprint computes stable digests of JSON values. A pending
// confirmation records the fingerprint of the action it stages; the digest is
// checked again before the action is applied.
package fingerprint

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/AgentMesh-Net/salesdesk/internal/core/canonicaljson"
)

// Of returns the hex SHA3-256 digest of v's canonical JSON form.
func Of(v any) (string, error) {
	canon, err := canonicaljson.Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha3.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Match reports whether v still has the recorded fingerprint.
func Match(v any, want string) (bool, error) {
	got, err := Of(v)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1, nil
}
