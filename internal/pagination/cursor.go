package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/AgentMesh-Net/salesdesk/internal/core/canonicaljson"
)

// Position is the resume point of a keyset traversal: the sort value and id
// of the last row a caller has seen.
type Position struct {
	SortKey string `json:"k"`
	ID      string `json:"i"`
}

// Valid reports whether p can be encoded into a cursor. An empty sort key is
// a legitimate column value; only the id is required.
func (p Position) Valid() bool {
	return p.ID != ""
}

// Compare orders positions by (SortKey, ID) using byte order.
func (p Position) Compare(o Position) int {
	if c := strings.Compare(p.SortKey, o.SortKey); c != 0 {
		return c
	}
	return strings.Compare(p.ID, o.ID)
}

// Encode returns an opaque, URL-safe token for p. The payload is canonical
// JSON, so equal positions always yield equal tokens. The token carries no
// filter identity: it is only meaningful to the query that minted it.
func Encode(p Position) string {
	raw, err := canonicaljson.Canonicalize(p)
	if err != nil {
		// Two string fields always marshal.
		raw, _ = json.Marshal(p)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a token produced by Encode. It reports false, never panics,
// for anything that is not a well-formed cursor.
func Decode(token string) (Position, bool) {
	if token == "" {
		return Position{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Position{}, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p Position
	if err := dec.Decode(&p); err != nil {
		return Position{}, false
	}
	if dec.More() {
		return Position{}, false
	}
	if !p.Valid() {
		return Position{}, false
	}
	return p, true
}
