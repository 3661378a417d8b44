// Package service holds what the CRM and tax operations share: converting
// failures to the error envelope, caller checks and list-page metadata.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/dustin/go-humanize"
	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/metrics"
	"github.com/AgentMesh-Net/salesdesk/internal/pagination"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
)

// Base is embedded by the domain services.
type Base struct {
	Logger    pslog.Logger
	Metrics   *metrics.Metrics
	Estimator store.Estimator
}

// NewBase tags logger with the subsystem name.
func NewBase(subsystem string, logger pslog.Logger, est store.Estimator, m *metrics.Metrics) Base {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return Base{Logger: logger.With("subsystem", subsystem), Metrics: m, Estimator: est}
}

// Fail converts err to the error envelope. Infrastructure and internal
// failures are logged with the operation name; the caller only sees the
// generic message.
func (b Base) Fail(op string, err error) envelope.Response {
	e := envelope.Classify(err)
	switch e.Kind {
	case envelope.KindTransient, envelope.KindInternal:
		b.Logger.Error(op+".failed", "code", string(e.Code), "error", err)
	default:
		b.Logger.Debug(op+".rejected", "code", string(e.Code), "error", err)
	}
	return envelope.FromError(err)
}

// Respond returns resp, or the error envelope when err is set.
func (b Base) Respond(op string, resp envelope.Response, err error) envelope.Response {
	if err != nil {
		return b.Fail(op, err)
	}
	return resp
}

// RequireUser rejects calls without a caller identity.
func RequireUser(uc store.UserContext) error {
	if !uc.Valid() {
		return envelope.PermissionDenied("a user identity is required")
	}
	return nil
}

// RequireID rejects a blank id parameter.
func RequireID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", envelope.InvalidInput(field, "is required")
	}
	return id, nil
}

// StoreError maps repository errors onto the taxonomy. Already classified
// errors pass through.
func StoreError(err error, entity, id string) error {
	var classified *envelope.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &classified):
		return err
	case errors.Is(err, store.ErrNotFound):
		return envelope.NotFound(entity, id)
	default:
		return envelope.Database(err)
	}
}

// OneOf validates an enum filter value. Empty means unset.
func OneOf(field, v string, allowed []string) error {
	if v == "" {
		return nil
	}
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return envelope.InvalidInput(field, "must be one of "+strings.Join(allowed, ", "))
}

// ListResult builds the success envelope of a list page. First pages carry
// an approximate total when the store can estimate one.
func ListResult[T any](ctx context.Context, b Base, entity, table string, req pagination.Request, page pagination.Page[T]) envelope.Response {
	if req.Cursor == "" && b.Estimator != nil {
		n, ok, err := b.Estimator.EstimateRows(ctx, table)
		switch {
		case err != nil:
			b.Logger.Debug("list.estimate.failed", "table", table, "error", err)
		case ok:
			page.Meta.TotalEstimate = "~" + humanize.Comma(n)
		}
	}
	b.Metrics.PageRows(entity, page.Meta.ReturnedCount)
	return envelope.Success{Data: page.Rows, Metadata: page.Meta}
}
