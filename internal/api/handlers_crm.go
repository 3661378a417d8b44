package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AgentMesh-Net/salesdesk/internal/crm"
	"github.com/AgentMesh-Net/salesdesk/internal/util"
)

// GET /v1/customers?industry=&status=&ownerId=&search=&minRevenue=&limit=&cursor=
func (h *handlers) ListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := util.QueryPage(q)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	minRevenue, err := util.QueryFloat(q, "minRevenue")
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteEnvelope(w, h.crm.ListCustomers(r.Context(), userFrom(r), crm.ListCustomersInput{
		Industry:   q.Get("industry"),
		Status:     q.Get("status"),
		OwnerID:    q.Get("ownerId"),
		Search:     q.Get("search"),
		MinRevenue: minRevenue,
		Limit:      page.Limit,
		Cursor:     page.Cursor,
	}))
}

func (h *handlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	util.WriteEnvelope(w, h.crm.GetCustomer(r.Context(), userFrom(r), chi.URLParam(r, "customerID")))
}

// DELETE /v1/customers/{customerID} answers 202 with a confirmation id.
func (h *handlers) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	util.WriteEnvelope(w, h.crm.DeleteCustomer(r.Context(), userFrom(r), chi.URLParam(r, "customerID")))
}

// GET /v1/opportunities?stage=&customerId=&ownerId=&minAmount=&maxAmount=&limit=&cursor=
func (h *handlers) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := util.QueryPage(q)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	minAmount, err := util.QueryFloat(q, "minAmount")
	if err != nil {
		util.WriteError(w, err)
		return
	}
	maxAmount, err := util.QueryFloat(q, "maxAmount")
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteEnvelope(w, h.crm.ListOpportunities(r.Context(), userFrom(r), crm.ListOpportunitiesInput{
		Stage:      q.Get("stage"),
		CustomerID: q.Get("customerId"),
		OwnerID:    q.Get("ownerId"),
		MinAmount:  minAmount,
		MaxAmount:  maxAmount,
		Limit:      page.Limit,
		Cursor:     page.Cursor,
	}))
}

func (h *handlers) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	util.WriteEnvelope(w, h.crm.GetOpportunity(r.Context(), userFrom(r), chi.URLParam(r, "opportunityID")))
}

type closeOpportunityBody struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// POST /v1/opportunities/{opportunityID}/close {"outcome":"won","reason":"..."}
func (h *handlers) CloseOpportunity(w http.ResponseWriter, r *http.Request) {
	var body closeOpportunityBody
	if err := util.DecodeBody(r, h.maxBody, &body); err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteEnvelope(w, h.crm.CloseOpportunity(r.Context(), userFrom(r), crm.CloseOpportunityInput{
		OpportunityID: chi.URLParam(r, "opportunityID"),
		Outcome:       body.Outcome,
		Reason:        body.Reason,
	}))
}

// GET /v1/leads?status=&source=&search=&minScore=&limit=&cursor=
func (h *handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := util.QueryPage(q)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	minScore, err := util.QueryInt(q, "minScore")
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteEnvelope(w, h.crm.ListLeads(r.Context(), userFrom(r), crm.ListLeadsInput{
		Status:   q.Get("status"),
		Source:   q.Get("source"),
		Search:   q.Get("search"),
		MinScore: minScore,
		Limit:    page.Limit,
		Cursor:   page.Cursor,
	}))
}

func (h *handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	util.WriteEnvelope(w, h.crm.GetLead(r.Context(), userFrom(r), chi.URLParam(r, "leadID")))
}

type leadStatusBody struct {
	Status string `json:"status"`
}

// POST /v1/leads/{leadID}/status {"status":"qualified"}
func (h *handlers) UpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var body leadStatusBody
	if err := util.DecodeBody(r, h.maxBody, &body); err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteEnvelope(w, h.crm.UpdateLeadStatus(r.Context(), userFrom(r), crm.UpdateLeadStatusInput{
		LeadID: chi.URLParam(r, "leadID"),
		Status: body.Status,
	}))
}

// POST /v1/confirmations {"confirmationId":"...","decision":"approve"}
func (h *handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	var in crm.ConfirmInput
	if err := util.DecodeBody(r, h.maxBody, &in); err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteEnvelope(w, h.crm.Confirm(r.Context(), userFrom(r), in))
}
