package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/config"
	"github.com/AgentMesh-Net/salesdesk/internal/crm"
	"github.com/AgentMesh-Net/salesdesk/internal/tax"
)

// Deps are the services the router exposes.
type Deps struct {
	CRM      *crm.Service
	Tax      *tax.Service
	Gatherer prometheus.Gatherer
	Logger   pslog.Logger
}

// NewRouter creates the HTTP router with all v1 endpoints.
func NewRouter(d Deps, cfg config.Config) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(accessLog(logger.With("subsystem", "api")))

	h := &handlers{crm: d.CRM, tax: d.Tax, maxBody: cfg.MaxBodyBytes, cfg: cfg}

	r.Get("/v1/health", h.GetHealth)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/v1/customers", h.ListCustomers)
		r.Get("/v1/customers/{customerID}", h.GetCustomer)
		r.Delete("/v1/customers/{customerID}", h.DeleteCustomer)

		r.Get("/v1/opportunities", h.ListOpportunities)
		r.Get("/v1/opportunities/{opportunityID}", h.GetOpportunity)
		r.Post("/v1/opportunities/{opportunityID}/close", h.CloseOpportunity)

		r.Get("/v1/leads", h.ListLeads)
		r.Get("/v1/leads/{leadID}", h.GetLead)
		r.Post("/v1/leads/{leadID}/status", h.UpdateLeadStatus)

		r.Post("/v1/confirmations", h.Confirm)

		r.Get("/v1/tax/filings", h.ListFilings)
		r.Get("/v1/tax/filings/{filingID}", h.GetFiling)
	})

	return otelhttp.NewHandler(r, "salesdesk.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

type handlers struct {
	crm     *crm.Service
	tax     *tax.Service
	maxBody int64
	cfg     config.Config
}

func accessLog(logger pslog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
