package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
)

// Memory is an in-process Store for demos and tests. Filtering, keyset and
// ordering behave like the PostgreSQL queries; row-level security is not
// modelled, every row is visible to every user.
type Memory struct {
	now func() time.Time

	mu            sync.RWMutex
	customers     map[string]Customer
	opportunities map[string]Opportunity
	leads         map[string]Lead
	filings       map[string]Filing
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:           time.Now,
		customers:     make(map[string]Customer),
		opportunities: make(map[string]Opportunity),
		leads:         make(map[string]Lead),
		filings:       make(map[string]Filing),
	}
}

// PutCustomer inserts or replaces a customer.
func (m *Memory) PutCustomer(c Customer) {
	m.mu.Lock()
	m.customers[c.ID] = c
	m.mu.Unlock()
}

// PutOpportunity inserts or replaces an opportunity.
func (m *Memory) PutOpportunity(o Opportunity) {
	m.mu.Lock()
	m.opportunities[o.ID] = o
	m.mu.Unlock()
}

// PutLead inserts or replaces a lead.
func (m *Memory) PutLead(l Lead) {
	m.mu.Lock()
	m.leads[l.ID] = l
	m.mu.Unlock()
}

// PutFiling inserts or replaces a filing.
func (m *Memory) PutFiling(f Filing) {
	m.mu.Lock()
	m.filings[f.ID] = f
	m.mu.Unlock()
}

// window sorts the rows accepted by match in w's direction and returns at
// most w.Limit of those strictly after w.After.
func window[T any](rows map[string]T, key pagination.Keyer[T], w pagination.Window, match func(T) bool) []T {
	var out []T
	for _, r := range rows {
		if match(r) && w.Admits(key(r)) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		c := key(out[i]).Compare(key(out[j]))
		if w.Direction == pagination.Descending {
			return c > 0
		}
		return c < 0
	})
	if w.Limit > 0 && len(out) > w.Limit {
		out = out[:w.Limit]
	}
	return out
}

func containsFold(s, term string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(term)))
}

func (m *Memory) ListCustomers(ctx context.Context, _ UserContext, f CustomerFilter, w pagination.Window) ([]Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CustomerSort.Check(w); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return window(m.customers, CustomerKey, w, func(c Customer) bool {
		switch {
		case f.Industry != "" && c.Industry != f.Industry,
			f.Status != "" && c.Status != f.Status,
			f.OwnerID != "" && c.OwnerID != f.OwnerID,
			strings.TrimSpace(f.Search) != "" && !containsFold(c.CompanyName, f.Search),
			f.MinRevenue != nil && c.AnnualRevenue < *f.MinRevenue:
			return false
		}
		return true
	}), nil
}

func (m *Memory) GetCustomer(ctx context.Context, _ UserContext, id string) (*Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) CountOpenOpportunities(ctx context.Context, _ UserContext, customerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, o := range m.opportunities {
		if o.CustomerID == customerID && !IsClosedStage(o.Stage) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteCustomer(ctx context.Context, _ UserContext, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[id]; !ok {
		return 0, ErrNotFound
	}
	delete(m.customers, id)
	removed := 0
	for oid, o := range m.opportunities {
		if o.CustomerID == id {
			delete(m.opportunities, oid)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) ListOpportunities(ctx context.Context, _ UserContext, f OpportunityFilter, w pagination.Window) ([]Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := OpportunitySort.Check(w); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return window(m.opportunities, OpportunityKey, w, func(o Opportunity) bool {
		switch {
		case f.Stage != "" && o.Stage != f.Stage,
			f.CustomerID != "" && o.CustomerID != f.CustomerID,
			f.OwnerID != "" && o.OwnerID != f.OwnerID,
			f.MinAmount != nil && o.Amount < *f.MinAmount,
			f.MaxAmount != nil && o.Amount > *f.MaxAmount:
			return false
		}
		return true
	}), nil
}

func (m *Memory) GetOpportunity(ctx context.Context, _ UserContext, id string) (*Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.opportunities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *Memory) CloseOpportunity(ctx context.Context, _ UserContext, id, stage, reason string) (*Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !IsClosedStage(stage) {
		return nil, fmt.Errorf("close opportunity: %q is not a closed stage", stage)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.opportunities[id]
	if !ok {
		return nil, ErrNotFound
	}
	if IsClosedStage(o.Stage) {
		return nil, ErrConflict
	}
	o.Stage = stage
	o.CloseReason = reason
	o.Probability = 0
	if stage == StageClosedWon {
		o.Probability = 100
	}
	o.UpdatedAt = m.now().UTC()
	m.opportunities[id] = o
	return &o, nil
}

func (m *Memory) ListLeads(ctx context.Context, _ UserContext, f LeadFilter, w pagination.Window) ([]Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := LeadSort.Check(w); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return window(m.leads, LeadKey, w, func(l Lead) bool {
		switch {
		case f.Status != "" && l.Status != f.Status,
			f.Source != "" && l.Source != f.Source,
			f.MinScore != nil && l.Score < *f.MinScore,
			strings.TrimSpace(f.Search) != "" && !containsFold(l.Name, f.Search) && !containsFold(l.Company, f.Search):
			return false
		}
		return true
	}), nil
}

func (m *Memory) GetLead(ctx context.Context, _ UserContext, id string) (*Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (m *Memory) UpdateLeadStatus(ctx context.Context, _ UserContext, id, status string) (*Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	l.Status = status
	l.UpdatedAt = m.now().UTC()
	m.leads[id] = l
	return &l, nil
}

func (m *Memory) ListFilings(ctx context.Context, _ UserContext, f FilingFilter, w pagination.Window) ([]Filing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := FilingSort.Check(w); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return window(m.filings, FilingKey, w, func(fl Filing) bool {
		due := DateKey(fl.DueDate)
		switch {
		case f.Jurisdiction != "" && fl.Jurisdiction != f.Jurisdiction,
			f.TaxType != "" && fl.TaxType != f.TaxType,
			f.Status != "" && fl.Status != f.Status,
			f.DueAfter != nil && due < DateKey(*f.DueAfter),
			f.DueBefore != nil && due > DateKey(*f.DueBefore):
			return false
		}
		return true
	}), nil
}

func (m *Memory) GetFiling(ctx context.Context, _ UserContext, id string) (*Filing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.filings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

// EstimateRows is exact for the in-memory store.
func (m *Memory) EstimateRows(_ context.Context, table string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch table {
	case TableCustomers:
		return int64(len(m.customers)), true, nil
	case TableOpportunities:
		return int64(len(m.opportunities)), true, nil
	case TableLeads:
		return int64(len(m.leads)), true, nil
	case TableFilings:
		return int64(len(m.filings)), true, nil
	}
	return 0, false, fmt.Errorf("estimate: unknown table %q", table)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*PostgresStore)(nil)
)
