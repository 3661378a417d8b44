package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/metrics"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
)

type deleteParams struct {
	CustomerID string `json:"customerId"`
}

type recorder struct {
	mu    sync.Mutex
	calls []deleteParams
	users []store.UserContext
	err   error
}

func (r *recorder) apply(_ context.Context, uc store.UserContext, raw json.RawMessage) (any, error) {
	var p deleteParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.calls = append(r.calls, p)
	r.users = append(r.users, uc)
	return map[string]string{"deleted": p.CustomerID}, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type gateFixture struct {
	gate  *Gate
	cache *MemoryCache
	rec   *recorder
	reg   *prometheus.Registry
	now   time.Time
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	f := &gateFixture{
		cache: NewMemoryCache("crm"),
		rec:   &recorder{},
		reg:   prometheus.NewRegistry(),
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.cache.now = func() time.Time { return f.now }
	logger := pslog.NewStructured(context.Background(), io.Discard)
	f.gate = NewGate(f.cache, 0, logger, metrics.New(f.reg))
	f.gate.now = func() time.Time { return f.now }
	seq := 0
	f.gate.newID = func() string {
		seq++
		return fmt.Sprintf("conf-%d", seq)
	}
	f.gate.Handle("delete_customer", f.rec.apply)
	return f
}

var alice = store.UserContext{UserID: "alice", Roles: []string{"sales-admin"}}

func (f *gateFixture) request(t *testing.T, id string) string {
	t.Helper()
	resp, err := f.gate.Request(context.Background(), alice, Action{
		Name:    "delete_customer",
		Params:  deleteParams{CustomerID: id},
		Preview: map[string]any{"companyName": "Acme", "openOpportunities": 2},
		Message: "Delete customer Acme and its 2 open opportunities?",
	})
	require.NoError(t, err)
	p, ok := resp.(envelope.Pending)
	require.True(t, ok, "expected pending, got %T", resp)
	assert.Equal(t, "Delete customer Acme and its 2 open opportunities?", p.Message)
	return p.ConfirmationID
}

func requireCode(t *testing.T, err error, code envelope.Code) {
	t.Helper()
	var e *envelope.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, code, e.Code)
}

func TestGateRequestDoesNotApply(t *testing.T) {
	f := newGateFixture(t)
	id := f.request(t, "c-1")
	assert.Equal(t, 0, f.rec.count())
	exists, err := f.cache.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, DefaultTTL, f.gate.TTL())
}

func TestGateApproveAppliesOnceWithRequesterContext(t *testing.T) {
	f := newGateFixture(t)
	id := f.request(t, "c-1")

	bob := store.UserContext{UserID: "bob"}
	resp, err := f.gate.Resolve(context.Background(), bob, id, "approve")
	require.NoError(t, err)
	s, ok := resp.(envelope.Success)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"deleted": "c-1"}, s.Data)
	require.Equal(t, 1, f.rec.count())
	assert.Equal(t, deleteParams{CustomerID: "c-1"}, f.rec.calls[0])
	assert.Equal(t, alice, f.rec.users[0])

	_, err = f.gate.Resolve(context.Background(), bob, id, "approve")
	requireCode(t, err, envelope.CodeConfirmationExpired)
	assert.Equal(t, 1, f.rec.count(), "a duplicate approve must not apply again")
}

func TestGateRejectCancels(t *testing.T) {
	f := newGateFixture(t)
	id := f.request(t, "c-1")

	resp, err := f.gate.Resolve(context.Background(), alice, id, "Reject")
	require.NoError(t, err)
	assert.Equal(t, envelope.OK(Cancelled{Status: "cancelled", Action: "delete_customer", ConfirmationID: id}), resp)
	assert.Equal(t, 0, f.rec.count())

	_, err = f.gate.Resolve(context.Background(), alice, id, "approve")
	requireCode(t, err, envelope.CodeConfirmationExpired)
}

func TestGateExpiredConfirmation(t *testing.T) {
	f := newGateFixture(t)
	id := f.request(t, "c-1")
	f.now = f.now.Add(DefaultTTL + time.Second)

	_, err := f.gate.Resolve(context.Background(), alice, id, "approve")
	requireCode(t, err, envelope.CodeConfirmationExpired)
	assert.Equal(t, 0, f.rec.count())
}

func TestGateInvalidDecisionKeepsPending(t *testing.T) {
	f := newGateFixture(t)
	id := f.request(t, "c-1")

	_, err := f.gate.Resolve(context.Background(), alice, id, "maybe")
	var e *envelope.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, envelope.CodeInvalidInput, e.Code)
	assert.Equal(t, "decision", e.Field)

	_, err = f.gate.Resolve(context.Background(), alice, id, "approve")
	require.NoError(t, err)
	assert.Equal(t, 1, f.rec.count())
}

func TestGateMissingConfirmationID(t *testing.T) {
	f := newGateFixture(t)
	_, err := f.gate.Resolve(context.Background(), alice, "  ", "approve")
	var e *envelope.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "confirmationId", e.Field)
}

func TestGateTamperedPayloadIsNotApplied(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	id := f.request(t, "c-1")

	raw, ok, err := f.cache.Retrieve(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	var p Pending
	require.NoError(t, json.Unmarshal(raw, &p))
	p.Params = json.RawMessage(`{"customerId":"c-2"}`)
	raw, err = json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, f.cache.Store(ctx, id, raw, time.Minute))

	_, err = f.gate.Resolve(ctx, alice, id, "approve")
	requireCode(t, err, envelope.CodeInternal)
	assert.Equal(t, 0, f.rec.count())
}

func TestGateApplyFailureIsReturned(t *testing.T) {
	f := newGateFixture(t)
	id := f.request(t, "c-1")
	f.rec.err = envelope.NotFound("customer", "c-1")

	_, err := f.gate.Resolve(context.Background(), alice, id, "approve")
	requireCode(t, err, envelope.CodeNotFound)
}

func TestGateUnknownActionIsRejectedUpFront(t *testing.T) {
	f := newGateFixture(t)
	_, err := f.gate.Request(context.Background(), alice, Action{Name: "drop_database"})
	requireCode(t, err, envelope.CodeInternal)
	assert.Zero(t, f.cache.Len())
}

type failingCache struct{ err error }

func (c failingCache) Store(context.Context, string, []byte, time.Duration) error { return c.err }
func (c failingCache) Retrieve(context.Context, string) ([]byte, bool, error) {
	return nil, false, c.err
}
func (c failingCache) Exists(context.Context, string) (bool, error) { return false, c.err }

func TestGateCacheFailureIsTransient(t *testing.T) {
	g := NewGate(failingCache{err: errors.New("dial tcp: connection refused")}, time.Minute, nil, nil)
	g.Handle("delete_customer", (&recorder{}).apply)

	_, err := g.Request(context.Background(), alice, Action{Name: "delete_customer", Params: deleteParams{CustomerID: "c-1"}})
	requireCode(t, err, envelope.CodeCacheUnavailable)

	_, err = g.Resolve(context.Background(), alice, "conf-1", "approve")
	requireCode(t, err, envelope.CodeCacheUnavailable)
}

func TestGateConcurrentApproveAppliesOnce(t *testing.T) {
	f := newGateFixture(t)
	id := f.request(t, "c-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.gate.Resolve(context.Background(), alice, id, "approve")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.rec.count())
}

func TestGateRecordsOutcomes(t *testing.T) {
	f := newGateFixture(t)
	id := f.request(t, "c-1")
	_, err := f.gate.Resolve(context.Background(), alice, id, "approve")
	require.NoError(t, err)
	_, _ = f.gate.Resolve(context.Background(), alice, id, "approve")

	n, err := testutil.GatherAndCount(f.reg, "salesdesk_confirmations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "requested, applied and expired series")
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision(" APPROVE ")
	require.NoError(t, err)
	assert.Equal(t, Approve, d)
	_, err = ParseDecision("")
	assert.Error(t, err)
}
