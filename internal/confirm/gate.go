package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/core/fingerprint"
	"github.com/AgentMesh-Net/salesdesk/internal/metrics"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
)

// Decision is the caller's answer to a pending confirmation.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// ParseDecision accepts approve or reject, case-insensitively.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case Approve, Reject:
		return d, nil
	}
	return "", envelope.InvalidInput("decision", fmt.Sprintf("must be %q or %q", Approve, Reject))
}

// ApplyFunc performs a confirmed mutation with the parameters captured when
// it was requested. uc is the user who made the original request.
type ApplyFunc func(ctx context.Context, uc store.UserContext, params json.RawMessage) (any, error)

// Action describes a mutation to stage. Params must marshal to JSON; Preview
// is an optional snapshot of what will change, kept for audit.
type Action struct {
	Name    string
	Params  any
	Preview any
	Message string
}

// Pending is the cached record of a staged action.
type Pending struct {
	ConfirmationID string          `json:"confirmationId"`
	Action         string          `json:"action"`
	Params         json.RawMessage `json:"params"`
	Preview        json.RawMessage `json:"preview,omitempty"`
	Message        string          `json:"message"`
	UserID         string          `json:"userId"`
	Roles          []string        `json:"roles,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	TTLSeconds     int             `json:"ttlSeconds"`
	Fingerprint    string          `json:"fingerprint"`
}

func actionDigest(action string, params json.RawMessage) any {
	return map[string]any{"action": action, "params": params}
}

// Gate stages actions in a Cache and applies them on approval. Handlers are
// registered once at startup, before the gate serves requests.
type Gate struct {
	cache   Cache
	ttl     time.Duration
	logger  pslog.Logger
	metrics *metrics.Metrics

	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	handlers map[string]ApplyFunc
}

// NewGate returns a gate over cache. A non-positive ttl means DefaultTTL.
func NewGate(cache Cache, ttl time.Duration, logger pslog.Logger, m *metrics.Metrics) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Gate{
		cache:    cache,
		ttl:      ttl,
		logger:   logger.With("subsystem", "confirm"),
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
		handlers: make(map[string]ApplyFunc),
	}
}

// TTL is how long staged actions remain approvable.
func (g *Gate) TTL() time.Duration { return g.ttl }

// Handle registers the function that applies action.
func (g *Gate) Handle(action string, fn ApplyFunc) {
	g.mu.Lock()
	g.handlers[action] = fn
	g.mu.Unlock()
}

func (g *Gate) handler(action string) (ApplyFunc, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn, ok := g.handlers[action]
	return fn, ok
}

// Request stages a and returns the pending_confirmation envelope. Nothing is
// mutated until Resolve approves it.
func (g *Gate) Request(ctx context.Context, uc store.UserContext, a Action) (envelope.Response, error) {
	ctx, span := tracer.Start(ctx, "confirm.request")
	defer span.End()
	span.SetAttributes(attribute.String("confirm.action", a.Name))

	if _, ok := g.handler(a.Name); !ok {
		return nil, envelope.Internal(fmt.Errorf("confirm: no handler registered for action %q", a.Name))
	}
	params, err := json.Marshal(a.Params)
	if err != nil {
		return nil, envelope.Internal(fmt.Errorf("confirm: marshal params: %w", err))
	}
	p := Pending{
		ConfirmationID: g.newID(),
		Action:         a.Name,
		Params:         params,
		Message:        a.Message,
		UserID:         uc.UserID,
		Roles:          uc.Roles,
		CreatedAt:      g.now().UTC(),
		TTLSeconds:     int(g.ttl / time.Second),
	}
	if a.Preview != nil {
		if p.Preview, err = json.Marshal(a.Preview); err != nil {
			return nil, envelope.Internal(fmt.Errorf("confirm: marshal preview: %w", err))
		}
	}
	if p.Fingerprint, err = fingerprint.Of(actionDigest(p.Action, p.Params)); err != nil {
		return nil, envelope.Internal(fmt.Errorf("confirm: fingerprint: %w", err))
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, envelope.Internal(fmt.Errorf("confirm: marshal pending: %w", err))
	}
	if err := g.cache.Store(ctx, p.ConfirmationID, payload, g.ttl); err != nil {
		g.logger.Error("confirm.store.failed", "action", a.Name, "error", err)
		g.metrics.Confirmation(a.Name, metrics.OutcomeFailed)
		return nil, envelope.CacheUnavailable(err)
	}
	g.metrics.Confirmation(a.Name, metrics.OutcomeRequested)
	g.logger.Info("confirm.requested", "action", a.Name, "confirmation_id", p.ConfirmationID, "user_id", uc.UserID)
	return envelope.Pending{ConfirmationID: p.ConfirmationID, Message: a.Message}, nil
}

// Cancelled is the data of the success envelope returned for a rejection.
type Cancelled struct {
	Status         string `json:"status"`
	Action         string `json:"action"`
	ConfirmationID string `json:"confirmationId"`
}

// Resolve consumes the pending confirmation id and either applies or discards
// it. An unknown, expired or already resolved id yields a
// confirmation-expired error. An invalid decision is rejected before the
// cache is touched, so the confirmation stays approvable.
func (g *Gate) Resolve(ctx context.Context, uc store.UserContext, confirmationID, decision string) (envelope.Response, error) {
	ctx, span := tracer.Start(ctx, "confirm.resolve")
	defer span.End()

	confirmationID = strings.TrimSpace(confirmationID)
	if confirmationID == "" {
		return nil, envelope.InvalidInput("confirmationId", "is required")
	}
	d, err := ParseDecision(decision)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("confirm.decision", string(d)))

	raw, ok, err := g.cache.Retrieve(ctx, confirmationID)
	if err != nil {
		g.logger.Error("confirm.retrieve.failed", "confirmation_id", confirmationID, "error", err)
		return nil, envelope.CacheUnavailable(err)
	}
	if !ok {
		g.metrics.Confirmation("unknown", metrics.OutcomeExpired)
		g.logger.Info("confirm.expired", "confirmation_id", confirmationID, "user_id", uc.UserID)
		return nil, envelope.ConfirmationExpired(confirmationID)
	}

	var p Pending
	if err := json.Unmarshal(raw, &p); err != nil {
		g.logger.Error("confirm.payload.corrupt", "confirmation_id", confirmationID, "error", err)
		return nil, envelope.Internal(fmt.Errorf("confirm: decode pending: %w", err))
	}
	span.SetAttributes(attribute.String("confirm.action", p.Action))
	log := g.logger.With("action", p.Action, "confirmation_id", confirmationID, "resolved_by", uc.UserID)

	if d == Reject {
		g.metrics.Confirmation(p.Action, metrics.OutcomeRejected)
		log.Info("confirm.rejected")
		return envelope.OK(Cancelled{Status: "cancelled", Action: p.Action, ConfirmationID: confirmationID}), nil
	}

	match, err := fingerprint.Match(actionDigest(p.Action, p.Params), p.Fingerprint)
	if err != nil || !match {
		g.metrics.Confirmation(p.Action, metrics.OutcomeFailed)
		log.Error("confirm.fingerprint.mismatch", "error", err)
		return nil, envelope.Internal(errors.New("confirm: pending action failed its integrity check"))
	}
	apply, ok := g.handler(p.Action)
	if !ok {
		g.metrics.Confirmation(p.Action, metrics.OutcomeFailed)
		return nil, envelope.Internal(fmt.Errorf("confirm: no handler registered for action %q", p.Action))
	}

	requester := store.UserContext{UserID: p.UserID, Roles: p.Roles}
	result, err := apply(ctx, requester, p.Params)
	if err != nil {
		g.metrics.Confirmation(p.Action, metrics.OutcomeFailed)
		log.Warn("confirm.apply.failed", "error", err)
		return nil, err
	}
	g.metrics.Confirmation(p.Action, metrics.OutcomeApplied)
	log.Info("confirm.applied")
	return envelope.OK(result), nil
}
