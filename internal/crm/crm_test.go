package crm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/confirm"
	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
)

var rep = store.UserContext{UserID: "rep-1", Roles: []string{"sales-admin"}}

type fixture struct {
	svc *Service
	mem *store.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, nil)
}

func newFixtureWithRepo(t *testing.T, wrap func(*store.Memory) Repository) *fixture {
	t.Helper()
	mem := store.NewMemory()
	created := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	mem.PutCustomer(store.Customer{ID: "c-1", CompanyName: "Acme Corp", Industry: "manufacturing", Status: store.CustomerActive, OwnerID: "rep-1", AnnualRevenue: 1_200_000, CreatedAt: created})
	mem.PutCustomer(store.Customer{ID: "c-2", CompanyName: "Blue Harbor", Industry: "logistics", Status: store.CustomerActive, OwnerID: "rep-2", CreatedAt: created})
	mem.PutCustomer(store.Customer{ID: "c-3", CompanyName: "Cedar Partners", Industry: "legal", Status: store.CustomerProspect, OwnerID: "rep-1", CreatedAt: created})
	mem.PutCustomer(store.Customer{ID: "c-4", CompanyName: "Delta Robotics", Industry: "manufacturing", Status: store.CustomerActive, OwnerID: "rep-3", CreatedAt: created})
	mem.PutCustomer(store.Customer{ID: "c-5", CompanyName: "Evergreen Health", Industry: "healthcare", Status: store.CustomerInactive, OwnerID: "rep-2", CreatedAt: created})
	mem.PutOpportunity(store.Opportunity{ID: "o-1", CustomerID: "c-1", Name: "Acme renewal", Stage: store.StageNegotiation, Amount: 48_000, CreatedAt: created.Add(time.Hour)})
	mem.PutOpportunity(store.Opportunity{ID: "o-2", CustomerID: "c-1", Name: "Acme expansion", Stage: store.StageProposal, Amount: 12_500, CreatedAt: created.Add(2 * time.Hour)})
	mem.PutOpportunity(store.Opportunity{ID: "o-3", CustomerID: "c-1", Name: "Acme pilot", Stage: store.StageClosedLost, CreatedAt: created.Add(3 * time.Hour)})
	mem.PutLead(store.Lead{ID: "l-1", Name: "Ada Lovelace", Company: "Analytical Engines", Status: store.LeadNew, Score: 70, CreatedAt: created})

	var repo Repository = mem
	if wrap != nil {
		repo = wrap(mem)
	}
	logger := pslog.NewStructured(context.Background(), io.Discard)
	gate := confirm.NewGate(confirm.NewMemoryCache("crm"), time.Minute, logger, nil)
	return &fixture{svc: New(repo, gate, logger, nil), mem: mem}
}

func requireFailure(t *testing.T, resp envelope.Response, code envelope.Code) envelope.Failure {
	t.Helper()
	f, ok := resp.(envelope.Failure)
	require.True(t, ok, "expected failure, got %#v", resp)
	assert.Equal(t, code, f.Code)
	assert.NotEmpty(t, f.SuggestedAction)
	return f
}

func requireSuccess(t *testing.T, resp envelope.Response) envelope.Success {
	t.Helper()
	s, ok := resp.(envelope.Success)
	require.True(t, ok, "expected success, got %#v", resp)
	return s
}

func TestListCustomersPagesByCompanyName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var names []string
	cursor := ""
	for i := 0; ; i++ {
		require.Less(t, i, 10)
		s := requireSuccess(t, f.svc.ListCustomers(ctx, rep, ListCustomersInput{Limit: 2, Cursor: cursor}))
		rows := s.Data.([]store.Customer)
		meta := s.Metadata.(pagination.Meta)
		for _, c := range rows {
			names = append(names, c.CompanyName)
		}
		if i == 0 {
			assert.Equal(t, "~5", meta.TotalEstimate)
		} else {
			assert.Empty(t, meta.TotalEstimate)
		}
		if !meta.HasMore {
			assert.Len(t, rows, 1)
			break
		}
		cursor = meta.NextCursor
	}
	assert.Equal(t, []string{"Acme Corp", "Blue Harbor", "Cedar Partners", "Delta Robotics", "Evergreen Health"}, names)
}

func TestListCustomersPagesPastEmptyCompanyName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.PutCustomer(store.Customer{ID: "c-0", CompanyName: "", Status: store.CustomerProspect, OwnerID: "rep-1", CreatedAt: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)})

	first := requireSuccess(t, f.svc.ListCustomers(ctx, rep, ListCustomersInput{Limit: 1}))
	rows := first.Data.([]store.Customer)
	require.Len(t, rows, 1)
	assert.Equal(t, "c-0", rows[0].ID, "the empty name sorts first")
	meta := first.Metadata.(pagination.Meta)
	require.True(t, meta.HasMore)

	ids := []string{"c-0"}
	cursor := meta.NextCursor
	for i := 0; cursor != ""; i++ {
		require.Less(t, i, 10)
		s := requireSuccess(t, f.svc.ListCustomers(ctx, rep, ListCustomersInput{Limit: 1, Cursor: cursor}))
		for _, c := range s.Data.([]store.Customer) {
			ids = append(ids, c.ID)
		}
		cursor = s.Metadata.(pagination.Meta).NextCursor
	}
	assert.Equal(t, []string{"c-0", "c-1", "c-2", "c-3", "c-4", "c-5"}, ids)
}

func TestListCustomersValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fail := requireFailure(t, f.svc.ListCustomers(ctx, rep, ListCustomersInput{Cursor: "not-base64!!"}), envelope.CodeInvalidInput)
	assert.Equal(t, "cursor", fail.Field)

	fail = requireFailure(t, f.svc.ListCustomers(ctx, rep, ListCustomersInput{Limit: 101}), envelope.CodeInvalidInput)
	assert.Equal(t, "limit", fail.Field)

	fail = requireFailure(t, f.svc.ListCustomers(ctx, rep, ListCustomersInput{Status: "gone"}), envelope.CodeInvalidInput)
	assert.Equal(t, "status", fail.Field)

	requireFailure(t, f.svc.ListCustomers(ctx, store.UserContext{}, ListCustomersInput{}), envelope.CodePermissionDenied)
}

func TestListCustomersFilters(t *testing.T) {
	f := newFixture(t)
	s := requireSuccess(t, f.svc.ListCustomers(context.Background(), rep, ListCustomersInput{Industry: "manufacturing", OwnerID: "rep-3"}))
	rows := s.Data.([]store.Customer)
	require.Len(t, rows, 1)
	assert.Equal(t, "c-4", rows[0].ID)
}

func TestGetCustomerNotFound(t *testing.T) {
	f := newFixture(t)
	requireFailure(t, f.svc.GetCustomer(context.Background(), rep, "c-404"), envelope.CodeNotFound)
	fail := requireFailure(t, f.svc.GetCustomer(context.Background(), rep, " "), envelope.CodeInvalidInput)
	assert.Equal(t, "customerId", fail.Field)
}

func TestDeleteCustomerRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.svc.DeleteCustomer(ctx, rep, "c-1")
	pending, ok := resp.(envelope.Pending)
	require.True(t, ok, "expected pending, got %#v", resp)
	assert.NotEmpty(t, pending.ConfirmationID)
	assert.Contains(t, pending.Message, "Acme Corp")
	assert.Contains(t, pending.Message, "2 of them still open")

	_, err := f.mem.GetCustomer(ctx, rep, "c-1")
	require.NoError(t, err, "nothing is deleted before approval")

	done := requireSuccess(t, f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: pending.ConfirmationID, Decision: "approve"}))
	assert.Equal(t, DeletedCustomer{CustomerID: "c-1", CompanyName: "Acme Corp", RemovedOpportunities: 3}, done.Data)
	_, err = f.mem.GetCustomer(ctx, rep, "c-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	again := f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: pending.ConfirmationID, Decision: "approve"})
	requireFailure(t, again, envelope.CodeConfirmationExpired)
}

func TestDeleteCustomerReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.svc.DeleteCustomer(ctx, rep, "c-2").(envelope.Pending)

	s := requireSuccess(t, f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: pending.ConfirmationID, Decision: "reject"}))
	assert.Equal(t, confirm.Cancelled{Status: "cancelled", Action: ActionDeleteCustomer, ConfirmationID: pending.ConfirmationID}, s.Data)
	_, err := f.mem.GetCustomer(ctx, rep, "c-2")
	assert.NoError(t, err)
}

func TestDeleteCustomerUnknownID(t *testing.T) {
	f := newFixture(t)
	requireFailure(t, f.svc.DeleteCustomer(context.Background(), rep, "c-404"), envelope.CodeNotFound)
}

func TestDeleteCustomerGoneBeforeApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.svc.DeleteCustomer(ctx, rep, "c-3").(envelope.Pending)
	_, err := f.mem.DeleteCustomer(ctx, rep, "c-3")
	require.NoError(t, err)

	requireFailure(t, f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: pending.ConfirmationID, Decision: "approve"}), envelope.CodeNotFound)
}

func TestConfirmValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fail := requireFailure(t, f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: "x", Decision: "later"}), envelope.CodeInvalidInput)
	assert.Equal(t, "decision", fail.Field)
	requireFailure(t, f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: "never-issued", Decision: "approve"}), envelope.CodeConfirmationExpired)
	requireFailure(t, f.svc.Confirm(ctx, store.UserContext{}, ConfirmInput{ConfirmationID: "x", Decision: "approve"}), envelope.CodePermissionDenied)
}

func TestListOpportunitiesMostRecentFirst(t *testing.T) {
	f := newFixture(t)
	s := requireSuccess(t, f.svc.ListOpportunities(context.Background(), rep, ListOpportunitiesInput{CustomerID: "c-1"}))
	rows := s.Data.([]store.Opportunity)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"o-3", "o-2", "o-1"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})

	lo, hi := 20_000.0, 10_000.0
	fail := requireFailure(t, f.svc.ListOpportunities(context.Background(), rep, ListOpportunitiesInput{MinAmount: &lo, MaxAmount: &hi}), envelope.CodeInvalidInput)
	assert.Equal(t, "maxAmount", fail.Field)
}

func TestCloseOpportunity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fail := requireFailure(t, f.svc.CloseOpportunity(ctx, rep, CloseOpportunityInput{OpportunityID: "o-1", Outcome: "maybe"}), envelope.CodeInvalidInput)
	assert.Equal(t, "outcome", fail.Field)
	requireFailure(t, f.svc.CloseOpportunity(ctx, rep, CloseOpportunityInput{OpportunityID: "o-3", Outcome: "won"}), envelope.CodeInvalidInput)

	resp := f.svc.CloseOpportunity(ctx, rep, CloseOpportunityInput{OpportunityID: "o-1", Outcome: "Won", Reason: "signed"})
	pending, ok := resp.(envelope.Pending)
	require.True(t, ok, "expected pending, got %#v", resp)
	assert.Contains(t, pending.Message, "48,000")

	s := requireSuccess(t, f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: pending.ConfirmationID, Decision: "approve"}))
	o := s.Data.(*store.Opportunity)
	assert.Equal(t, store.StageClosedWon, o.Stage)
	assert.Equal(t, "signed", o.CloseReason)
}

func TestCloseOpportunityClosedMeanwhile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.svc.CloseOpportunity(ctx, rep, CloseOpportunityInput{OpportunityID: "o-2", Outcome: "lost"}).(envelope.Pending)
	second := f.svc.CloseOpportunity(ctx, rep, CloseOpportunityInput{OpportunityID: "o-2", Outcome: "won"}).(envelope.Pending)

	requireSuccess(t, f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: second.ConfirmationID, Decision: "approve"}))
	fail := requireFailure(t, f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: first.ConfirmationID, Decision: "approve"}), envelope.CodeInvalidInput)
	assert.Equal(t, "opportunityId", fail.Field)
}

func TestUpdateLeadStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	requireFailure(t, f.svc.UpdateLeadStatus(ctx, rep, UpdateLeadStatusInput{LeadID: "l-1", Status: "new"}), envelope.CodeInvalidInput)
	requireFailure(t, f.svc.UpdateLeadStatus(ctx, rep, UpdateLeadStatusInput{LeadID: "l-1", Status: "won"}), envelope.CodeInvalidInput)
	requireFailure(t, f.svc.UpdateLeadStatus(ctx, rep, UpdateLeadStatusInput{LeadID: "l-404", Status: "qualified"}), envelope.CodeNotFound)

	pending := f.svc.UpdateLeadStatus(ctx, rep, UpdateLeadStatusInput{LeadID: "l-1", Status: "Qualified"}).(envelope.Pending)
	s := requireSuccess(t, f.svc.Confirm(ctx, rep, ConfirmInput{ConfirmationID: pending.ConfirmationID, Decision: "approve"}))
	assert.Equal(t, store.LeadQualified, s.Data.(*store.Lead).Status)
}

func TestListLeadsValidatesScore(t *testing.T) {
	f := newFixture(t)
	score := 150
	fail := requireFailure(t, f.svc.ListLeads(context.Background(), rep, ListLeadsInput{MinScore: &score}), envelope.CodeInvalidInput)
	assert.Equal(t, "minScore", fail.Field)

	s := requireSuccess(t, f.svc.ListLeads(context.Background(), rep, ListLeadsInput{Search: "analytical"}))
	assert.Len(t, s.Data.([]store.Lead), 1)
	requireSuccess(t, f.svc.GetLead(context.Background(), rep, "l-1"))
}

type brokenRepo struct {
	*store.Memory
}

func (brokenRepo) ListCustomers(context.Context, store.UserContext, store.CustomerFilter, pagination.Window) ([]store.Customer, error) {
	return nil, errors.New("pq: connection reset by peer at 10.0.0.12:5432")
}

func (brokenRepo) EstimateRows(context.Context, string) (int64, bool, error) {
	return 0, false, errors.New("boom")
}

func TestListCustomersDatabaseFailure(t *testing.T) {
	f := newFixtureWithRepo(t, func(m *store.Memory) Repository { return brokenRepo{m} })
	fail := requireFailure(t, f.svc.ListCustomers(context.Background(), rep, ListCustomersInput{}), envelope.CodeDatabaseError)
	assert.NotContains(t, fail.Message, "10.0.0.12")
}
