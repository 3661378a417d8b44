package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
	"github.com/AgentMesh-Net/salesdesk/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/AgentMesh-Net/salesdesk/internal/store")

// PostgresStore implements Store on PostgreSQL. Every call runs in its own
// transaction carrying the caller's row-level security settings.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func startSpan(ctx context.Context, op, table string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", table),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *PostgresStore) read(ctx context.Context, uc UserContext, fn func(pgx.Tx) error) error {
	return withUser(ctx, s.pool, uc, pgx.ReadOnly, fn)
}

func (s *PostgresStore) write(ctx context.Context, uc UserContext, fn func(pgx.Tx) error) error {
	return withUser(ctx, s.pool, uc, pgx.ReadWrite, fn)
}

func collect[T any](ctx context.Context, tx pgx.Tx, q *Select, scan func(pgx.Row) (T, error)) ([]T, error) {
	sql, args := q.SQL()
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

const customerColumns = `id, company_name, industry, status, owner_id, annual_revenue, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.CompanyName, &c.Industry, &c.Status, &c.OwnerID, &c.AnnualRevenue, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresStore) ListCustomers(ctx context.Context, uc UserContext, f CustomerFilter, w pagination.Window) (out []Customer, err error) {
	ctx, span := startSpan(ctx, "list", TableCustomers)
	defer func() { endSpan(span, err) }()
	if err = CustomerSort.Check(w); err != nil {
		return nil, err
	}

	q := NewSelect(customerColumns, TableCustomers).
		Eq("industry", f.Industry).
		Eq("status", f.Status).
		Eq("owner_id", f.OwnerID).
		ILike(f.Search, "company_name")
	if f.MinRevenue != nil {
		q.Gte("annual_revenue", *f.MinRevenue)
	}
	q.Page(CustomerSort, w)

	err = s.read(ctx, uc, func(tx pgx.Tx) error {
		out, err = collect(ctx, tx, q, scanCustomer)
		return err
	})
	return out, err
}

func (s *PostgresStore) GetCustomer(ctx context.Context, uc UserContext, id string) (c *Customer, err error) {
	ctx, span := startSpan(ctx, "get", TableCustomers)
	defer func() { endSpan(span, err) }()

	err = s.read(ctx, uc, func(tx pgx.Tx) error {
		row, err := scanCustomer(tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
		if err != nil {
			return translate(err)
		}
		c = &row
		return nil
	})
	return c, err
}

func (s *PostgresStore) CountOpenOpportunities(ctx context.Context, uc UserContext, customerID string) (n int, err error) {
	ctx, span := startSpan(ctx, "count_open", TableOpportunities)
	defer func() { endSpan(span, err) }()

	const q = `SELECT count(*) FROM opportunities WHERE customer_id = $1 AND stage NOT IN ('closed_won', 'closed_lost')`
	err = s.read(ctx, uc, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q, customerID).Scan(&n)
	})
	return n, err
}

func (s *PostgresStore) DeleteCustomer(ctx context.Context, uc UserContext, id string) (removed int, err error) {
	ctx, span := startSpan(ctx, "delete", TableCustomers)
	defer func() { endSpan(span, err) }()

	err = s.write(ctx, uc, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM opportunities WHERE customer_id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete opportunities: %w", err)
		}
		removed = int(tag.RowsAffected())
		tag, err = tx.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete customer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	return removed, err
}

const opportunityColumns = `id, customer_id, name, stage, amount, probability, expected_close_date, owner_id, COALESCE(close_reason, ''), created_at, updated_at`

func scanOpportunity(row pgx.Row) (Opportunity, error) {
	var o Opportunity
	err := row.Scan(&o.ID, &o.CustomerID, &o.Name, &o.Stage, &o.Amount, &o.Probability,
		&o.ExpectedCloseDate, &o.OwnerID, &o.CloseReason, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (s *PostgresStore) ListOpportunities(ctx context.Context, uc UserContext, f OpportunityFilter, w pagination.Window) (out []Opportunity, err error) {
	ctx, span := startSpan(ctx, "list", TableOpportunities)
	defer func() { endSpan(span, err) }()
	if err = OpportunitySort.Check(w); err != nil {
		return nil, err
	}

	q := NewSelect(opportunityColumns, TableOpportunities).
		Eq("stage", f.Stage).
		Eq("customer_id", f.CustomerID).
		Eq("owner_id", f.OwnerID)
	if f.MinAmount != nil {
		q.Gte("amount", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q.Lte("amount", *f.MaxAmount)
	}
	q.Page(OpportunitySort, w)

	err = s.read(ctx, uc, func(tx pgx.Tx) error {
		out, err = collect(ctx, tx, q, scanOpportunity)
		return err
	})
	return out, err
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, uc UserContext, id string) (o *Opportunity, err error) {
	ctx, span := startSpan(ctx, "get", TableOpportunities)
	defer func() { endSpan(span, err) }()

	err = s.read(ctx, uc, func(tx pgx.Tx) error {
		row, err := scanOpportunity(tx.QueryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1`, id))
		if err != nil {
			return translate(err)
		}
		o = &row
		return nil
	})
	return o, err
}

func (s *PostgresStore) CloseOpportunity(ctx context.Context, uc UserContext, id, stage, reason string) (o *Opportunity, err error) {
	ctx, span := startSpan(ctx, "close", TableOpportunities)
	defer func() { endSpan(span, err) }()

	const q = `UPDATE opportunities
SET stage = $2, close_reason = NULLIF($3, ''), probability = CASE WHEN $2 = 'closed_won' THEN 100 ELSE 0 END, updated_at = now()
WHERE id = $1 AND stage NOT IN ('closed_won', 'closed_lost')
RETURNING ` + opportunityColumns

	err = s.write(ctx, uc, func(tx pgx.Tx) error {
		row, err := scanOpportunity(tx.QueryRow(ctx, q, id, stage, reason))
		if err == nil {
			o = &row
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("close opportunity: %w", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM opportunities WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("close opportunity: %w", err)
		}
		if exists {
			return ErrConflict
		}
		return ErrNotFound
	})
	return o, err
}

const leadColumns = `id, name, company, email, source, status, score, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.Name, &l.Company, &l.Email, &l.Source, &l.Status, &l.Score, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (s *PostgresStore) ListLeads(ctx context.Context, uc UserContext, f LeadFilter, w pagination.Window) (out []Lead, err error) {
	ctx, span := startSpan(ctx, "list", TableLeads)
	defer func() { endSpan(span, err) }()
	if err = LeadSort.Check(w); err != nil {
		return nil, err
	}

	q := NewSelect(leadColumns, TableLeads).
		Eq("status", f.Status).
		Eq("source", f.Source).
		ILike(f.Search, "name", "company")
	if f.MinScore != nil {
		q.Gte("score", *f.MinScore)
	}
	q.Page(LeadSort, w)

	err = s.read(ctx, uc, func(tx pgx.Tx) error {
		out, err = collect(ctx, tx, q, scanLead)
		return err
	})
	return out, err
}

func (s *PostgresStore) GetLead(ctx context.Context, uc UserContext, id string) (l *Lead, err error) {
	ctx, span := startSpan(ctx, "get", TableLeads)
	defer func() { endSpan(span, err) }()

	err = s.read(ctx, uc, func(tx pgx.Tx) error {
		row, err := scanLead(tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
		if err != nil {
			return translate(err)
		}
		l = &row
		return nil
	})
	return l, err
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, uc UserContext, id, status string) (l *Lead, err error) {
	ctx, span := startSpan(ctx, "update_status", TableLeads)
	defer func() { endSpan(span, err) }()

	q := `UPDATE leads SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + leadColumns
	err = s.write(ctx, uc, func(tx pgx.Tx) error {
		row, err := scanLead(tx.QueryRow(ctx, q, id, status))
		if err != nil {
			return translate(err)
		}
		l = &row
		return nil
	})
	return l, err
}

const filingColumns = `id, entity_name, jurisdiction, tax_type, period, status, amount_due, due_date`

func scanFiling(row pgx.Row) (Filing, error) {
	var f Filing
	err := row.Scan(&f.ID, &f.EntityName, &f.Jurisdiction, &f.TaxType, &f.Period, &f.Status, &f.AmountDue, &f.DueDate)
	return f, err
}

func (s *PostgresStore) ListFilings(ctx context.Context, uc UserContext, f FilingFilter, w pagination.Window) (out []Filing, err error) {
	ctx, span := startSpan(ctx, "list", TableFilings)
	defer func() { endSpan(span, err) }()
	if err = FilingSort.Check(w); err != nil {
		return nil, err
	}

	q := NewSelect(filingColumns, TableFilings).
		Eq("jurisdiction", f.Jurisdiction).
		Eq("tax_type", f.TaxType).
		Eq("status", f.Status)
	if f.DueAfter != nil {
		q.Where("due_date >= ?::date", DateKey(*f.DueAfter))
	}
	if f.DueBefore != nil {
		q.Where("due_date <= ?::date", DateKey(*f.DueBefore))
	}
	q.Page(FilingSort, w)

	err = s.read(ctx, uc, func(tx pgx.Tx) error {
		out, err = collect(ctx, tx, q, scanFiling)
		return err
	})
	return out, err
}

func (s *PostgresStore) GetFiling(ctx context.Context, uc UserContext, id string) (f *Filing, err error) {
	ctx, span := startSpan(ctx, "get", TableFilings)
	defer func() { endSpan(span, err) }()

	err = s.read(ctx, uc, func(tx pgx.Tx) error {
		row, err := scanFiling(tx.QueryRow(ctx, `SELECT `+filingColumns+` FROM tax_filings WHERE id = $1`, id))
		if err != nil {
			return translate(err)
		}
		f = &row
		return nil
	})
	return f, err
}

// EstimateRows reads the planner's row estimate. Tables that were never
// analysed report ok=false.
func (s *PostgresStore) EstimateRows(ctx context.Context, table string) (int64, bool, error) {
	switch table {
	case TableCustomers, TableOpportunities, TableLeads, TableFilings:
	default:
		return 0, false, fmt.Errorf("estimate: unknown table %q", table)
	}
	var n float64
	err := s.pool.QueryRow(ctx, `SELECT reltuples FROM pg_class WHERE relname = $1 AND relkind = 'r'`, table).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("estimate: %w", err)
	}
	if n < 0 {
		return 0, false, nil
	}
	return int64(n), true, nil
}
