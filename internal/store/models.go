package store

import (
	"time"

	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
)

// Sort key layouts. Both are fixed width so byte order equals time order.
const (
	TimestampKeyLayout = "2006-01-02T15:04:05.000000Z"
	DateKeyLayout      = "2006-01-02"
)

// TimestampKey renders t as a cursor sort key at microsecond precision.
func TimestampKey(t time.Time) string {
	return t.UTC().Format(TimestampKeyLayout)
}

// DateKey renders the calendar date of t as a cursor sort key.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateKeyLayout)
}

// Customer statuses.
const (
	CustomerActive   = "active"
	CustomerInactive = "inactive"
	CustomerProspect = "prospect"
)

// CustomerStatuses lists every valid customer status.
var CustomerStatuses = []string{CustomerActive, CustomerInactive, CustomerProspect}

// Customer is a row in the customers table.
type Customer struct {
	ID            string    `json:"id"`
	CompanyName   string    `json:"companyName"`
	Industry      string    `json:"industry"`
	Status        string    `json:"status"`
	OwnerID       string    `json:"ownerId"`
	AnnualRevenue float64   `json:"annualRevenue"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CustomerKey orders customers by (company_name, id).
func CustomerKey(c Customer) pagination.Position {
	return pagination.Position{SortKey: c.CompanyName, ID: c.ID}
}

// Opportunity stages.
const (
	StageProspecting   = "prospecting"
	StageQualification = "qualification"
	StageProposal      = "proposal"
	StageNegotiation   = "negotiation"
	StageClosedWon     = "closed_won"
	StageClosedLost    = "closed_lost"
)

// OpportunityStages lists every valid stage in pipeline order.
var OpportunityStages = []string{
	StageProspecting, StageQualification, StageProposal,
	StageNegotiation, StageClosedWon, StageClosedLost,
}

// IsClosedStage reports whether stage is terminal.
func IsClosedStage(stage string) bool {
	return stage == StageClosedWon || stage == StageClosedLost
}

// Opportunity is a row in the opportunities table.
type Opportunity struct {
	ID                string     `json:"id"`
	CustomerID        string     `json:"customerId"`
	Name              string     `json:"name"`
	Stage             string     `json:"stage"`
	Amount            float64    `json:"amount"`
	Probability       int        `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expectedCloseDate,omitempty"`
	OwnerID           string     `json:"ownerId"`
	CloseReason       string     `json:"closeReason,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// OpportunityKey orders opportunities by (created_at, id).
func OpportunityKey(o Opportunity) pagination.Position {
	return pagination.Position{SortKey: TimestampKey(o.CreatedAt), ID: o.ID}
}

// Lead statuses.
const (
	LeadNew          = "new"
	LeadContacted    = "contacted"
	LeadQualified    = "qualified"
	LeadDisqualified = "disqualified"
)

var LeadStatuses = []string{LeadNew, LeadContacted, LeadQualified, LeadDisqualified}

// Lead is a row in the leads table.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	Email     string    `json:"email"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LeadKey orders leads by (created_at, id).
func LeadKey(l Lead) pagination.Position {
	return pagination.Position{SortKey: TimestampKey(l.CreatedAt), ID: l.ID}
}

// Filing statuses.
const (
	FilingDraft   = "draft"
	FilingFiled   = "filed"
	FilingAmended = "amended"
	FilingOverdue = "overdue"
)

var FilingStatuses = []string{FilingDraft, FilingFiled, FilingAmended, FilingOverdue}

// Filing is a row in the tax_filings table.
type Filing struct {
	ID           string    `json:"id"`
	EntityName   string    `json:"entityName"`
	Jurisdiction string    `json:"jurisdiction"`
	TaxType      string    `json:"taxType"`
	Period       string    `json:"period"`
	Status       string    `json:"status"`
	AmountDue    float64   `json:"amountDue"`
	DueDate      time.Time `json:"dueDate"`
}

// FilingKey orders filings by (due_date, id).
func FilingKey(f Filing) pagination.Position {
	return pagination.Position{SortKey: DateKey(f.DueDate), ID: f.ID}
}
