// Package crm implements the customer, opportunity and lead operations.
// Reads return a page or a record directly; destructive writes are staged
// through the confirmation gate and applied only on approval.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/confirm"
	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/metrics"
	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
	"github.com/AgentMesh-Net/salesdesk/internal/service"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
)

// Gated action names.
const (
	ActionDeleteCustomer   = "delete_customer"
	ActionCloseOpportunity = "close_opportunity"
	ActionUpdateLeadStatus = "update_lead_status"
)

// Repository is the storage the CRM service needs.
type Repository interface {
	store.CustomerRepo
	store.OpportunityRepo
	store.LeadRepo
	store.Estimator
}

// Service runs CRM operations. Every method returns an envelope and never
// a Go error.
type Service struct {
	service.Base
	repo Repository
	gate *confirm.Gate
}

// New wires the service and registers its apply handlers on gate.
func New(repo Repository, gate *confirm.Gate, logger pslog.Logger, m *metrics.Metrics) *Service {
	s := &Service{
		Base: service.NewBase("crm", logger, repo, m),
		repo: repo,
		gate: gate,
	}
	gate.Handle(ActionDeleteCustomer, s.applyDeleteCustomer)
	gate.Handle(ActionCloseOpportunity, s.applyCloseOpportunity)
	gate.Handle(ActionUpdateLeadStatus, s.applyUpdateLeadStatus)
	return s
}

func pageRequest(limit int, cursor string) pagination.Request {
	return pagination.Request{Limit: limit, Cursor: strings.TrimSpace(cursor)}
}

func nonNegative(field string, v *float64) error {
	if v != nil && *v < 0 {
		return envelope.InvalidInput(field, "must not be negative")
	}
	return nil
}

// ListCustomersInput filters customers. Results are ordered by company name.
type ListCustomersInput struct {
	Industry   string   `json:"industry,omitempty"`
	Status     string   `json:"status,omitempty" jsonschema:"One of active, inactive, prospect"`
	OwnerID    string   `json:"ownerId,omitempty"`
	Search     string   `json:"search,omitempty" jsonschema:"Case-insensitive substring of the company name"`
	MinRevenue *float64 `json:"minRevenue,omitempty" jsonschema:"Minimum annual revenue"`
	Limit      int      `json:"limit,omitempty" jsonschema:"Page size between 1 and 100, default 50"`
	Cursor     string   `json:"cursor,omitempty" jsonschema:"nextCursor of the previous page; omit for the first page"`
}

func (in ListCustomersInput) filter() (store.CustomerFilter, error) {
	if err := service.OneOf("status", in.Status, store.CustomerStatuses); err != nil {
		return store.CustomerFilter{}, err
	}
	if err := nonNegative("minRevenue", in.MinRevenue); err != nil {
		return store.CustomerFilter{}, err
	}
	return store.CustomerFilter{
		Industry:   strings.TrimSpace(in.Industry),
		Status:     in.Status,
		OwnerID:    strings.TrimSpace(in.OwnerID),
		Search:     in.Search,
		MinRevenue: in.MinRevenue,
	}, nil
}

func (s *Service) ListCustomers(ctx context.Context, uc store.UserContext, in ListCustomersInput) envelope.Response {
	const op = "crm.customers.list"
	if err := service.RequireUser(uc); err != nil {
		return s.Fail(op, err)
	}
	f, err := in.filter()
	if err != nil {
		return s.Fail(op, err)
	}
	req := pageRequest(in.Limit, in.Cursor)
	page, err := pagination.List(ctx, req, pagination.Ascending, store.CustomerKey,
		func(ctx context.Context, w pagination.Window) ([]store.Customer, error) {
			return s.repo.ListCustomers(ctx, uc, f, w)
		})
	if err != nil {
		return s.Fail(op, err)
	}
	return service.ListResult(ctx, s.Base, "customers", store.TableCustomers, req, page)
}

func (s *Service) GetCustomer(ctx context.Context, uc store.UserContext, id string) envelope.Response {
	c, err := s.customer(ctx, uc, id)
	if err != nil {
		return s.Fail("crm.customers.get", err)
	}
	return envelope.OK(c)
}

func (s *Service) customer(ctx context.Context, uc store.UserContext, id string) (*store.Customer, error) {
	if err := service.RequireUser(uc); err != nil {
		return nil, err
	}
	id, err := service.RequireID("customerId", id)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetCustomer(ctx, uc, id)
	return c, service.StoreError(err, "customer", id)
}

type deleteCustomerParams struct {
	CustomerID string `json:"customerId"`
}

// DeletedCustomer is the result of an approved customer deletion.
type DeletedCustomer struct {
	CustomerID           string `json:"customerId"`
	CompanyName          string `json:"companyName,omitempty"`
	RemovedOpportunities int    `json:"removedOpportunities"`
}

// DeleteCustomer stages deletion of a customer together with its
// opportunities. The prompt names how many open opportunities go with it.
func (s *Service) DeleteCustomer(ctx context.Context, uc store.UserContext, id string) envelope.Response {
	const op = "crm.customers.delete"
	c, err := s.customer(ctx, uc, id)
	if err != nil {
		return s.Fail(op, err)
	}
	open, err := s.repo.CountOpenOpportunities(ctx, uc, c.ID)
	if err != nil {
		return s.Fail(op, service.StoreError(err, "customer", c.ID))
	}
	msg := fmt.Sprintf("Delete customer %q (%s)? This also deletes its opportunities, %d of them still open. This cannot be undone.",
		c.CompanyName, c.ID, open)
	resp, err := s.gate.Request(ctx, uc, confirm.Action{
		Name:    ActionDeleteCustomer,
		Params:  deleteCustomerParams{CustomerID: c.ID},
		Preview: map[string]any{"customer": c, "openOpportunities": open},
		Message: msg,
	})
	return s.Respond(op, resp, err)
}

func (s *Service) applyDeleteCustomer(ctx context.Context, uc store.UserContext, raw json.RawMessage) (any, error) {
	var p deleteCustomerParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, envelope.Internal(fmt.Errorf("decode %s params: %w", ActionDeleteCustomer, err))
	}
	c, err := s.repo.GetCustomer(ctx, uc, p.CustomerID)
	if err != nil {
		return nil, service.StoreError(err, "customer", p.CustomerID)
	}
	removed, err := s.repo.DeleteCustomer(ctx, uc, p.CustomerID)
	if err != nil {
		return nil, service.StoreError(err, "customer", p.CustomerID)
	}
	s.Logger.Info("crm.customer.deleted", "customer_id", p.CustomerID, "removed_opportunities", removed, "user_id", uc.UserID)
	return DeletedCustomer{CustomerID: p.CustomerID, CompanyName: c.CompanyName, RemovedOpportunities: removed}, nil
}

// ListOpportunitiesInput filters opportunities. Results are most recent first.
type ListOpportunitiesInput struct {
	Stage      string   `json:"stage,omitempty"`
	CustomerID string   `json:"customerId,omitempty"`
	OwnerID    string   `json:"ownerId,omitempty"`
	MinAmount  *float64 `json:"minAmount,omitempty"`
	MaxAmount  *float64 `json:"maxAmount,omitempty"`
	Limit      int      `json:"limit,omitempty" jsonschema:"Page size between 1 and 100, default 50"`
	Cursor     string   `json:"cursor,omitempty" jsonschema:"nextCursor of the previous page; omit for the first page"`
}

func (in ListOpportunitiesInput) filter() (store.OpportunityFilter, error) {
	if err := service.OneOf("stage", in.Stage, store.OpportunityStages); err != nil {
		return store.OpportunityFilter{}, err
	}
	if err := nonNegative("minAmount", in.MinAmount); err != nil {
		return store.OpportunityFilter{}, err
	}
	if err := nonNegative("maxAmount", in.MaxAmount); err != nil {
		return store.OpportunityFilter{}, err
	}
	if in.MinAmount != nil && in.MaxAmount != nil && *in.MinAmount > *in.MaxAmount {
		return store.OpportunityFilter{}, envelope.InvalidInput("maxAmount", "must not be less than minAmount")
	}
	return store.OpportunityFilter{
		Stage:      in.Stage,
		CustomerID: strings.TrimSpace(in.CustomerID),
		OwnerID:    strings.TrimSpace(in.OwnerID),
		MinAmount:  in.MinAmount,
		MaxAmount:  in.MaxAmount,
	}, nil
}

func (s *Service) ListOpportunities(ctx context.Context, uc store.UserContext, in ListOpportunitiesInput) envelope.Response {
	const op = "crm.opportunities.list"
	if err := service.RequireUser(uc); err != nil {
		return s.Fail(op, err)
	}
	f, err := in.filter()
	if err != nil {
		return s.Fail(op, err)
	}
	req := pageRequest(in.Limit, in.Cursor)
	page, err := pagination.List(ctx, req, pagination.Descending, store.OpportunityKey,
		func(ctx context.Context, w pagination.Window) ([]store.Opportunity, error) {
			return s.repo.ListOpportunities(ctx, uc, f, w)
		})
	if err != nil {
		return s.Fail(op, err)
	}
	return service.ListResult(ctx, s.Base, "opportunities", store.TableOpportunities, req, page)
}

func (s *Service) GetOpportunity(ctx context.Context, uc store.UserContext, id string) envelope.Response {
	o, err := s.opportunity(ctx, uc, id)
	if err != nil {
		return s.Fail("crm.opportunities.get", err)
	}
	return envelope.OK(o)
}

func (s *Service) opportunity(ctx context.Context, uc store.UserContext, id string) (*store.Opportunity, error) {
	if err := service.RequireUser(uc); err != nil {
		return nil, err
	}
	id, err := service.RequireID("opportunityId", id)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.GetOpportunity(ctx, uc, id)
	return o, service.StoreError(err, "opportunity", id)
}

// Close outcomes.
const (
	OutcomeWon  = "won"
	OutcomeLost = "lost"
)

const maxReasonLen = 500

// CloseOpportunityInput names the opportunity and how it ended.
type CloseOpportunityInput struct {
	OpportunityID string `json:"opportunityId"`
	Outcome       string `json:"outcome" jsonschema:"Either won or lost"`
	Reason        string `json:"reason,omitempty"`
}

type closeOpportunityParams struct {
	OpportunityID string `json:"opportunityId"`
	Stage         string `json:"stage"`
	Reason        string `json:"reason,omitempty"`
}

// CloseOpportunity stages moving an open opportunity to closed_won or
// closed_lost. Already closed opportunities are refused up front.
func (s *Service) CloseOpportunity(ctx context.Context, uc store.UserContext, in CloseOpportunityInput) envelope.Response {
	const op = "crm.opportunities.close"
	var stage string
	switch strings.ToLower(strings.TrimSpace(in.Outcome)) {
	case OutcomeWon:
		stage = store.StageClosedWon
	case OutcomeLost:
		stage = store.StageClosedLost
	default:
		return s.Fail(op, envelope.InvalidInput("outcome", `must be "won" or "lost"`))
	}
	reason := strings.TrimSpace(in.Reason)
	if len(reason) > maxReasonLen {
		return s.Fail(op, envelope.InvalidInput("reason", fmt.Sprintf("must be at most %d characters", maxReasonLen)))
	}
	o, err := s.opportunity(ctx, uc, in.OpportunityID)
	if err != nil {
		return s.Fail(op, err)
	}
	if store.IsClosedStage(o.Stage) {
		return s.Fail(op, alreadyClosed(o.Stage))
	}
	msg := fmt.Sprintf("Close opportunity %q worth %s as %s?", o.Name, humanize.CommafWithDigits(o.Amount, 2), stage)
	resp, err := s.gate.Request(ctx, uc, confirm.Action{
		Name:    ActionCloseOpportunity,
		Params:  closeOpportunityParams{OpportunityID: o.ID, Stage: stage, Reason: reason},
		Preview: map[string]any{"opportunity": o, "newStage": stage},
		Message: msg,
	})
	return s.Respond(op, resp, err)
}

func alreadyClosed(stage string) error {
	return envelope.InvalidInput("opportunityId", "opportunity is already "+stage)
}

func (s *Service) applyCloseOpportunity(ctx context.Context, uc store.UserContext, raw json.RawMessage) (any, error) {
	var p closeOpportunityParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, envelope.Internal(fmt.Errorf("decode %s params: %w", ActionCloseOpportunity, err))
	}
	o, err := s.repo.CloseOpportunity(ctx, uc, p.OpportunityID, p.Stage, p.Reason)
	if errors.Is(err, store.ErrConflict) {
		return nil, alreadyClosed("closed")
	}
	if err != nil {
		return nil, service.StoreError(err, "opportunity", p.OpportunityID)
	}
	s.Logger.Info("crm.opportunity.closed", "opportunity_id", o.ID, "stage", o.Stage, "user_id", uc.UserID)
	return o, nil
}

// ListLeadsInput filters leads. Results are most recent first.
type ListLeadsInput struct {
	Status   string `json:"status,omitempty"`
	Source   string `json:"source,omitempty"`
	Search   string `json:"search,omitempty" jsonschema:"Case-insensitive substring of the lead or company name"`
	MinScore *int   `json:"minScore,omitempty" jsonschema:"Minimum score, 0 to 100"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Page size between 1 and 100, default 50"`
	Cursor   string `json:"cursor,omitempty" jsonschema:"nextCursor of the previous page; omit for the first page"`
}

func (in ListLeadsInput) filter() (store.LeadFilter, error) {
	if err := service.OneOf("status", in.Status, store.LeadStatuses); err != nil {
		return store.LeadFilter{}, err
	}
	if in.MinScore != nil && (*in.MinScore < 0 || *in.MinScore > 100) {
		return store.LeadFilter{}, envelope.InvalidInput("minScore", "must be between 0 and 100")
	}
	return store.LeadFilter{
		Status:   in.Status,
		Source:   strings.TrimSpace(in.Source),
		Search:   in.Search,
		MinScore: in.MinScore,
	}, nil
}

func (s *Service) ListLeads(ctx context.Context, uc store.UserContext, in ListLeadsInput) envelope.Response {
	const op = "crm.leads.list"
	if err := service.RequireUser(uc); err != nil {
		return s.Fail(op, err)
	}
	f, err := in.filter()
	if err != nil {
		return s.Fail(op, err)
	}
	req := pageRequest(in.Limit, in.Cursor)
	page, err := pagination.List(ctx, req, pagination.Descending, store.LeadKey,
		func(ctx context.Context, w pagination.Window) ([]store.Lead, error) {
			return s.repo.ListLeads(ctx, uc, f, w)
		})
	if err != nil {
		return s.Fail(op, err)
	}
	return service.ListResult(ctx, s.Base, "leads", store.TableLeads, req, page)
}

func (s *Service) GetLead(ctx context.Context, uc store.UserContext, id string) envelope.Response {
	l, err := s.lead(ctx, uc, id)
	if err != nil {
		return s.Fail("crm.leads.get", err)
	}
	return envelope.OK(l)
}

func (s *Service) lead(ctx context.Context, uc store.UserContext, id string) (*store.Lead, error) {
	if err := service.RequireUser(uc); err != nil {
		return nil, err
	}
	id, err := service.RequireID("leadId", id)
	if err != nil {
		return nil, err
	}
	l, err := s.repo.GetLead(ctx, uc, id)
	return l, service.StoreError(err, "lead", id)
}

// UpdateLeadStatusInput names the lead and its new status.
type UpdateLeadStatusInput struct {
	LeadID string `json:"leadId"`
	Status string `json:"status" jsonschema:"One of new, contacted, qualified, disqualified"`
}

type updateLeadStatusParams struct {
	LeadID string `json:"leadId"`
	Status string `json:"status"`
}

// UpdateLeadStatus stages a lead status change.
func (s *Service) UpdateLeadStatus(ctx context.Context, uc store.UserContext, in UpdateLeadStatusInput) envelope.Response {
	const op = "crm.leads.update_status"
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == "" {
		return s.Fail(op, envelope.InvalidInput("status", "is required"))
	}
	if err := service.OneOf("status", status, store.LeadStatuses); err != nil {
		return s.Fail(op, err)
	}
	l, err := s.lead(ctx, uc, in.LeadID)
	if err != nil {
		return s.Fail(op, err)
	}
	if l.Status == status {
		return s.Fail(op, envelope.InvalidInput("status", "lead is already "+status))
	}
	resp, err := s.gate.Request(ctx, uc, confirm.Action{
		Name:    ActionUpdateLeadStatus,
		Params:  updateLeadStatusParams{LeadID: l.ID, Status: status},
		Preview: map[string]any{"lead": l, "newStatus": status},
		Message: fmt.Sprintf("Change the status of lead %q from %s to %s?", l.Name, l.Status, status),
	})
	return s.Respond(op, resp, err)
}

func (s *Service) applyUpdateLeadStatus(ctx context.Context, uc store.UserContext, raw json.RawMessage) (any, error) {
	var p updateLeadStatusParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, envelope.Internal(fmt.Errorf("decode %s params: %w", ActionUpdateLeadStatus, err))
	}
	l, err := s.repo.UpdateLeadStatus(ctx, uc, p.LeadID, p.Status)
	if err != nil {
		return nil, service.StoreError(err, "lead", p.LeadID)
	}
	s.Logger.Info("crm.lead.status_updated", "lead_id", l.ID, "status", l.Status, "user_id", uc.UserID)
	return l, nil
}

// ConfirmInput answers a pending confirmation.
type ConfirmInput struct {
	ConfirmationID string `json:"confirmationId"`
	Decision       string `json:"decision" jsonschema:"Either approve or reject"`
}

// Confirm approves or rejects a staged action. An id that is unknown,
// expired or already used yields CONFIRMATION_EXPIRED.
func (s *Service) Confirm(ctx context.Context, uc store.UserContext, in ConfirmInput) envelope.Response {
	const op = "crm.confirm"
	if err := service.RequireUser(uc); err != nil {
		return s.Fail(op, err)
	}
	resp, err := s.gate.Resolve(ctx, uc, in.ConfirmationID, in.Decision)
	return s.Respond(op, resp, err)
}
