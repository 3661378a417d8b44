// Package pagination implements keyset (cursor) pagination over a fixed
// (sortKey, id) ordering.
//
// A page is fetched by asking the store for limit+1 rows strictly after the
// decoded cursor position. The extra row only signals that more rows exist;
// the next cursor is minted from the last row of the trimmed page. Because id
// breaks ties, traversal is deterministic and gap-free even when many rows
// share a sort key.
//
// Consistency is the usual weak one for cursor pagination: a row inserted
// between two page fetches whose (sortKey, id) sorts at or before the cursor
// is not returned by later pages, and one that sorts after it may be. No
// transaction is held across calls.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Direction is the traversal order of a list operation. Every list operation
// fixes one direction for its ORDER BY; the keyset predicate follows it.
type Direction int

const (
	// Ascending resumes with (sortKey, id) > cursor.
	Ascending Direction = iota
	// Descending resumes with (sortKey, id) < cursor; used for
	// most-recent-first listings.
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Operator returns the SQL row-comparison operator that resumes after a cursor.
func (d Direction) Operator() string {
	if d == Descending {
		return "<"
	}
	return ">"
}

// Request is the caller-facing paging input. Zero Limit means DefaultLimit.
type Request struct {
	Limit  int
	Cursor string
}

// ParseRequest builds a Request from raw transport strings. An unparsable
// limit is reported as invalid input on the "limit" field.
func ParseRequest(limit, cursor string) (Request, error) {
	req := Request{Cursor: strings.TrimSpace(cursor)}
	if s := strings.TrimSpace(limit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Request{}, envelope.InvalidInput("limit", "must be an integer between 1 and 100")
		}
		if n == 0 {
			return Request{}, envelope.InvalidInput("limit", fmt.Sprintf("must be between 1 and %d", MaxLimit))
		}
		req.Limit = n
	}
	return req, nil
}

// Window is what a store needs to fetch one page: rows strictly after After
// (when set) in Direction order, at most Limit of them. Limit already
// includes the look-ahead row.
type Window struct {
	After     *Position
	Direction Direction
	Limit     int
}

// Admits reports whether p lies strictly beyond the window's cursor.
func (w Window) Admits(p Position) bool {
	if w.After == nil {
		return true
	}
	c := p.Compare(*w.After)
	if w.Direction == Descending {
		return c < 0
	}
	return c > 0
}

// Meta is the page-result metadata. NextCursor is set iff HasMore.
type Meta struct {
	HasMore       bool   `json:"hasMore"`
	NextCursor    string `json:"nextCursor,omitempty"`
	ReturnedCount int    `json:"returnedCount"`
	TotalEstimate string `json:"totalEstimate,omitempty"`
}

// Page is one page of rows with its metadata.
type Page[T any] struct {
	Rows []T
	Meta Meta
}

// Keyer extracts the (sortKey, id) position of a row.
type Keyer[T any] func(T) Position

// FetchFunc runs the underlying ordered query for a window.
type FetchFunc[T any] func(ctx context.Context, w Window) ([]T, error)

// Normalize validates req and returns the page size and decoded position.
func (r Request) Normalize() (int, *Position, error) {
	limit := r.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return 0, nil, envelope.InvalidInput("limit", fmt.Sprintf("must be between 1 and %d, got %d", MaxLimit, r.Limit))
	}
	if r.Cursor == "" {
		return limit, nil, nil
	}
	pos, ok := Decode(r.Cursor)
	if !ok {
		return 0, nil, envelope.InvalidInput("cursor", "is not a valid pagination cursor; omit it to start from the first page")
	}
	return limit, &pos, nil
}

// List fetches one page. Validation failures are invalid-input errors naming
// the field; a fetch failure that is not already classified is reported as a
// database error. Nothing is retried.
func List[T any](ctx context.Context, req Request, dir Direction, key Keyer[T], fetch FetchFunc[T]) (Page[T], error) {
	limit, after, err := req.Normalize()
	if err != nil {
		return Page[T]{}, err
	}
	rows, err := fetch(ctx, Window{After: after, Direction: dir, Limit: limit + 1})
	if err != nil {
		var classified *envelope.Error
		if errors.As(err, &classified) {
			return Page[T]{}, err
		}
		return Page[T]{}, envelope.Database(err)
	}
	return Trim(rows, limit, key), nil
}

// Trim applies the limit+1 rule to rows already fetched in order.
func Trim[T any](rows []T, limit int, key Keyer[T]) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	if len(rows) <= limit {
		return Page[T]{Rows: rows, Meta: Meta{ReturnedCount: len(rows)}}
	}
	rows = rows[:limit]
	next := Encode(key(rows[limit-1]))
	return Page[T]{
		Rows: rows,
		Meta: Meta{HasMore: true, NextCursor: next, ReturnedCount: limit},
	}
}
