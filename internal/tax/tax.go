// Package tax serves read-only tax filing data.
package tax

import (
	"context"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/metrics"
	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
	"github.com/AgentMesh-Net/salesdesk/internal/service"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
)

// Repository is the storage the tax service needs.
type Repository interface {
	store.FilingRepo
	store.Estimator
}

type Service struct {
	service.Base
	repo Repository
}

func New(repo Repository, logger pslog.Logger, m *metrics.Metrics) *Service {
	return &Service{Base: service.NewBase("tax", logger, repo, m), repo: repo}
}

// ListFilingsInput filters filings. Results are ordered by due date.
type ListFilingsInput struct {
	Jurisdiction string `json:"jurisdiction,omitempty" jsonschema:"Jurisdiction code such as US-CA or DE"`
	TaxType      string `json:"taxType,omitempty"`
	Status       string `json:"status,omitempty" jsonschema:"One of draft, filed, amended, overdue"`
	DueAfter     string `json:"dueAfter,omitempty" jsonschema:"Earliest due date, YYYY-MM-DD, inclusive"`
	DueBefore    string `json:"dueBefore,omitempty" jsonschema:"Latest due date, YYYY-MM-DD, inclusive"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Page size between 1 and 100, default 50"`
	Cursor       string `json:"cursor,omitempty" jsonschema:"nextCursor of the previous page; omit for the first page"`
}

func parseDate(field, v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(store.DateKeyLayout, v)
	if err != nil {
		return nil, envelope.InvalidInput(field, "must be a date formatted YYYY-MM-DD")
	}
	return &t, nil
}

func (in ListFilingsInput) filter() (store.FilingFilter, error) {
	if err := service.OneOf("status", in.Status, store.FilingStatuses); err != nil {
		return store.FilingFilter{}, err
	}
	after, err := parseDate("dueAfter", in.DueAfter)
	if err != nil {
		return store.FilingFilter{}, err
	}
	before, err := parseDate("dueBefore", in.DueBefore)
	if err != nil {
		return store.FilingFilter{}, err
	}
	if after != nil && before != nil && before.Before(*after) {
		return store.FilingFilter{}, envelope.InvalidInput("dueBefore", "must not be earlier than dueAfter")
	}
	return store.FilingFilter{
		Jurisdiction: strings.TrimSpace(in.Jurisdiction),
		TaxType:      strings.TrimSpace(in.TaxType),
		Status:       in.Status,
		DueAfter:     after,
		DueBefore:    before,
	}, nil
}

func (s *Service) ListFilings(ctx context.Context, uc store.UserContext, in ListFilingsInput) envelope.Response {
	const op = "tax.filings.list"
	if err := service.RequireUser(uc); err != nil {
		return s.Fail(op, err)
	}
	f, err := in.filter()
	if err != nil {
		return s.Fail(op, err)
	}
	req := pagination.Request{Limit: in.Limit, Cursor: strings.TrimSpace(in.Cursor)}
	page, err := pagination.List(ctx, req, pagination.Ascending, store.FilingKey,
		func(ctx context.Context, w pagination.Window) ([]store.Filing, error) {
			return s.repo.ListFilings(ctx, uc, f, w)
		})
	if err != nil {
		return s.Fail(op, err)
	}
	return service.ListResult(ctx, s.Base, "filings", store.TableFilings, req, page)
}

func (s *Service) GetFiling(ctx context.Context, uc store.UserContext, id string) envelope.Response {
	const op = "tax.filings.get"
	if err := service.RequireUser(uc); err != nil {
		return s.Fail(op, err)
	}
	id, err := service.RequireID("filingId", id)
	if err != nil {
		return s.Fail(op, err)
	}
	f, err := s.repo.GetFiling(ctx, uc, id)
	if err != nil {
		return s.Fail(op, service.StoreError(err, "filing", id))
	}
	return envelope.OK(f)
}
