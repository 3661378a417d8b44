package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
)

// SortSpec names the ordering column of a listing and the SQL type the
// cursor's string sort key is cast to. The id column always breaks ties.
type SortSpec struct {
	Column string
	Cast   string
}

// Sort orders for the listed tables.
var (
	CustomerSort    = SortSpec{Column: "company_name", Cast: "text"}
	OpportunitySort = SortSpec{Column: "created_at", Cast: "timestamptz"}
	LeadSort        = SortSpec{Column: "created_at", Cast: "timestamptz"}
	FilingSort      = SortSpec{Column: "due_date", Cast: "date"}
)

// Check rejects a window whose cursor sort key cannot be cast to the sort
// column's type, which happens when a cursor minted by another listing is
// replayed here. Both backends call it so they fail the same way.
func (s SortSpec) Check(w pagination.Window) error {
	if w.After == nil {
		return nil
	}
	var err error
	switch s.Cast {
	case "timestamptz":
		_, err = time.Parse(TimestampKeyLayout, w.After.SortKey)
	case "date":
		_, err = time.Parse(DateKeyLayout, w.After.SortKey)
	}
	if err != nil {
		return envelope.InvalidInput("cursor", "does not belong to this listing; omit it to start from the first page")
	}
	return nil
}

// Select builds a parameterised SELECT. Conditions are written with ?
// placeholders and renumbered to $n by SQL; values are never interpolated.
// Every query built by Page ends in ORDER BY sort, id so pages are stable.
type Select struct {
	columns string
	from    string
	where   []string
	args    []any
	order   string
	limit   int
}

// NewSelect starts a query over from returning columns.
func NewSelect(columns, from string) *Select {
	return &Select{columns: columns, from: from}
}

// Where adds a raw AND-ed condition.
func (s *Select) Where(cond string, args ...any) *Select {
	s.where = append(s.where, cond)
	s.args = append(s.args, args...)
	return s
}

// Eq adds col = v. Empty values are skipped so unset filters fall away.
func (s *Select) Eq(col, v string) *Select {
	if v == "" {
		return s
	}
	return s.Where(col+" = ?", v)
}

// ILike adds a case-insensitive substring match of term against any of cols.
func (s *Select) ILike(term string, cols ...string) *Select {
	term = strings.TrimSpace(term)
	if term == "" || len(cols) == 0 {
		return s
	}
	pattern := "%" + escapeLike(term) + "%"
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = c + " ILIKE ?"
		args[i] = pattern
	}
	cond := strings.Join(parts, " OR ")
	if len(cols) > 1 {
		cond = "(" + cond + ")"
	}
	return s.Where(cond, args...)
}

// Gte adds col >= v.
func (s *Select) Gte(col string, v any) *Select { return s.Where(col+" >= ?", v) }

// Lte adds col <= v.
func (s *Select) Lte(col string, v any) *Select { return s.Where(col+" <= ?", v) }

// Page applies the keyset predicate of w, the deterministic ordering and
// the look-ahead limit.
func (s *Select) Page(sort SortSpec, w pagination.Window) *Select {
	if w.After != nil {
		s.Where(fmt.Sprintf("(%s, id) %s (?::%s, ?)", sort.Column, w.Direction.Operator(), sort.Cast),
			w.After.SortKey, w.After.ID)
	}
	dir := "ASC"
	if w.Direction == pagination.Descending {
		dir = "DESC"
	}
	s.order = fmt.Sprintf("%s %s, id %s", sort.Column, dir, dir)
	s.limit = w.Limit
	return s
}

// SQL renders the statement and its positional arguments.
func (s *Select) SQL() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(s.columns)
	b.WriteString(" FROM ")
	b.WriteString(s.from)
	if len(s.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(s.where, " AND "))
	}
	args := append([]any(nil), s.args...)
	if s.order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(s.order)
	}
	if s.limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, s.limit)
	}
	return numberPlaceholders(b.String()), args
}

func numberPlaceholders(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
