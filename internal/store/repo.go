package store

import (
	"context"
	"time"

	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
)

// CustomerFilter narrows ListCustomers. Zero values are ignored.
type CustomerFilter struct {
	Industry   string
	Status     string
	OwnerID    string
	Search     string
	MinRevenue *float64
}

// OpportunityFilter narrows ListOpportunities. Zero values are ignored.
type OpportunityFilter struct {
	Stage      string
	CustomerID string
	OwnerID    string
	MinAmount  *float64
	MaxAmount  *float64
}

// LeadFilter narrows ListLeads. Zero values are ignored.
type LeadFilter struct {
	Status   string
	Source   string
	Search   string
	MinScore *int
}

// FilingFilter narrows ListFilings. Zero values are ignored; date bounds are
// inclusive.
type FilingFilter struct {
	Jurisdiction string
	TaxType      string
	Status       string
	DueAfter     *time.Time
	DueBefore    *time.Time
}

// CustomerRepo stores customers. List methods return at most w.Limit rows
// strictly after w.After in the table's (sort, id) order.
type CustomerRepo interface {
	ListCustomers(ctx context.Context, uc UserContext, f CustomerFilter, w pagination.Window) ([]Customer, error)
	// GetCustomer returns ErrNotFound when the row does not exist or is not
	// visible to uc.
	GetCustomer(ctx context.Context, uc UserContext, id string) (*Customer, error)
	CountOpenOpportunities(ctx context.Context, uc UserContext, customerID string) (int, error)
	// DeleteCustomer removes the customer and its opportunities and returns
	// how many opportunities went with it.
	DeleteCustomer(ctx context.Context, uc UserContext, id string) (int, error)
}

// OpportunityRepo stores opportunities, listed most recent first.
type OpportunityRepo interface {
	ListOpportunities(ctx context.Context, uc UserContext, f OpportunityFilter, w pagination.Window) ([]Opportunity, error)
	GetOpportunity(ctx context.Context, uc UserContext, id string) (*Opportunity, error)
	// CloseOpportunity moves an open opportunity to a closed stage. It
	// returns ErrConflict when the opportunity is already closed.
	CloseOpportunity(ctx context.Context, uc UserContext, id, stage, reason string) (*Opportunity, error)
}

// LeadRepo stores leads, listed most recent first.
type LeadRepo interface {
	ListLeads(ctx context.Context, uc UserContext, f LeadFilter, w pagination.Window) ([]Lead, error)
	GetLead(ctx context.Context, uc UserContext, id string) (*Lead, error)
	UpdateLeadStatus(ctx context.Context, uc UserContext, id, status string) (*Lead, error)
}

// FilingRepo stores tax filings, listed by due date.
type FilingRepo interface {
	ListFilings(ctx context.Context, uc UserContext, f FilingFilter, w pagination.Window) ([]Filing, error)
	GetFiling(ctx context.Context, uc UserContext, id string) (*Filing, error)
}

// Estimator reports an approximate row count for a table. ok is false when
// no estimate is available.
type Estimator interface {
	EstimateRows(ctx context.Context, table string) (n int64, ok bool, err error)
}

// Table names accepted by Estimator.
const (
	TableCustomers     = "customers"
	TableOpportunities = "opportunities"
	TableLeads         = "leads"
	TableFilings       = "tax_filings"
)

// Store bundles every repository.
type Store interface {
	CustomerRepo
	OpportunityRepo
	LeadRepo
	FilingRepo
	Estimator
}
