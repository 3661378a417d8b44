package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AgentMesh-Net/salesdesk/internal/tax"
	"github.com/AgentMesh-Net/salesdesk/internal/util"
)

// GET /v1/tax/filings?jurisdiction=&taxType=&status=&dueAfter=&dueBefore=&limit=&cursor=
func (h *handlers) ListFilings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := util.QueryPage(q)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteEnvelope(w, h.tax.ListFilings(r.Context(), userFrom(r), tax.ListFilingsInput{
		Jurisdiction: q.Get("jurisdiction"),
		TaxType:      q.Get("taxType"),
		Status:       q.Get("status"),
		DueAfter:     q.Get("dueAfter"),
		DueBefore:    q.Get("dueBefore"),
		Limit:        page.Limit,
		Cursor:       page.Cursor,
	}))
}

func (h *handlers) GetFiling(w http.ResponseWriter, r *http.Request) {
	util.WriteEnvelope(w, h.tax.GetFiling(r.Context(), userFrom(r), chi.URLParam(r, "filingID")))
}
