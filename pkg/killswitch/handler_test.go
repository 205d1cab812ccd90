package killswitch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/billing-killswitch/internal/testutil"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/alerts"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/billing"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/event"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/killswitch"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/mapping"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/model"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/storage"
)

var _ killswitch.Recorder = (*storage.SQLite)(nil)

// countingConnector records how often credentials were requested.
type countingConnector struct {
	mu     sync.Mutex
	calls  int
	client billing.Client
	err    error
}

func (c *countingConnector) Connect(_ context.Context) (billing.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.client, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func message(data, budgetID string) *event.Message {
	msg := &event.Message{Data: []byte(data), MessageID: "msg-1"}
	if budgetID != "" {
		msg.Attributes = map[string]string{event.BudgetIDAttribute: budgetID}
	}
	return msg
}

const overBudget = `{"costAmount":150,"budgetAmount":100}`

func TestHandle_NoActionNecessary(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	conn := &countingConnector{client: fake.Client(t)}
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, conn, testLogger())

	for _, budgetID := range []string{"b1", "unmapped", ""} {
		res, err := h.Handle(context.Background(), message(`{"costAmount":50,"budgetAmount":100}`, budgetID))
		require.NoError(t, err)
		assert.Equal(t, "No action necessary. (Current cost: 50)", res.String())
		assert.Equal(t, model.ActionNone, res.Action)
	}

	assert.Equal(t, 0, conn.calls)
	gets, updates := fake.Calls()
	assert.Zero(t, gets)
	assert.Zero(t, updates)
}

func TestHandle_NoActionAtExactBudget(t *testing.T) {
	conn := &countingConnector{}
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, conn, testLogger())

	res, err := h.Handle(context.Background(), message(`{"costAmount":100.5,"budgetAmount":"100.50"}`, "b1"))
	require.NoError(t, err)
	assert.Equal(t, "No action necessary. (Current cost: 100.5)", res.Message)
	assert.Zero(t, conn.calls)
}

func TestHandle_NoProjectSpecified(t *testing.T) {
	conn := &countingConnector{}
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, conn, testLogger())

	for _, budgetID := range []string{"unmapped", ""} {
		res, err := h.Handle(context.Background(), message(overBudget, budgetID))
		require.NoError(t, err)
		assert.Equal(t, "No project specified", res.String())
		assert.Equal(t, model.ActionNoProject, res.Action)
	}
	assert.Zero(t, conn.calls)
}

func TestHandle_NilMapping(t *testing.T) {
	conn := &countingConnector{}
	h := killswitch.NewHandler(nil, conn, testLogger())

	res, err := h.Handle(context.Background(), message(overBudget, "b1"))
	require.NoError(t, err)
	assert.Equal(t, model.ActionNoProject, res.Action)
}

func TestHandle_AlreadyDisabled(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "")
	conn := &countingConnector{client: fake.Client(t)}
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, conn, testLogger())

	res, err := h.Handle(context.Background(), message(overBudget, "b1"))
	require.NoError(t, err)
	assert.Equal(t, "Billing already disabled", res.String())
	assert.Equal(t, "p1", res.ProjectID)

	gets, updates := fake.Calls()
	assert.Equal(t, 1, gets)
	assert.Zero(t, updates)
}

func TestHandle_DisablesBilling(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")
	conn := &countingConnector{client: fake.Client(t)}
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, conn, testLogger())

	res, err := h.Handle(context.Background(), message(overBudget, "b1"))
	require.NoError(t, err)
	assert.Equal(t, model.ActionDisabled, res.Action)
	assert.Contains(t, res.String(), "Billing disabled:")
	assert.Contains(t, res.String(), `"projectId":"p1"`)

	assert.Equal(t, []string{"p1"}, fake.Updated())
	assert.Empty(t, fake.Account("p1"))
	assert.Equal(t, 1, conn.calls)
}

func TestHandle_Redelivery(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, billing.StaticConnector{Client: fake.Client(t)}, testLogger())
	ctx := context.Background()

	first, err := h.Handle(ctx, message(overBudget, "b1"))
	require.NoError(t, err)
	assert.Equal(t, model.ActionDisabled, first.Action)

	second, err := h.Handle(ctx, message(overBudget, "b1"))
	require.NoError(t, err)
	assert.Equal(t, "Billing already disabled", second.Message)

	_, updates := fake.Calls()
	assert.Equal(t, 1, updates)
}

func TestHandle_FailSafeOnStateQueryError(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "")
	fake.FailGet = http.StatusForbidden
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, billing.StaticConnector{Client: fake.Client(t)}, testLogger())

	res, err := h.Handle(context.Background(), message(overBudget, "b1"))
	require.NoError(t, err)
	assert.Equal(t, model.ActionDisabled, res.Action)
	assert.Equal(t, []string{"p1"}, fake.Updated())
}

func TestHandle_DisableFailurePropagates(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")
	fake.FailUpdate = http.StatusInternalServerError
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, billing.StaticConnector{Client: fake.Client(t)}, testLogger())

	res, err := h.Handle(context.Background(), message(overBudget, "b1"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, http.StatusInternalServerError, billing.StatusCode(err))
}

func TestHandle_CredentialFailurePropagates(t *testing.T) {
	credErr := errors.New("no credentials")
	conn := &countingConnector{err: credErr}
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, conn, testLogger())

	_, err := h.Handle(context.Background(), message(overBudget, "b1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, credErr)
	assert.Equal(t, 1, conn.calls)
}

func TestHandle_MalformedEvent(t *testing.T) {
	conn := &countingConnector{}
	h := killswitch.NewHandler(mapping.Mapping{"b1": "p1"}, conn, testLogger())

	_, err := h.Handle(context.Background(), message("{{{", "b1"))
	require.Error(t, err)
	assert.True(t, event.IsMalformed(err))
	assert.Zero(t, conn.calls)
}

func TestHandle_RecordsDecisions(t *testing.T) {
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")
	fake.SetAccount("p2", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")
	h := killswitch.NewHandler(
		mapping.Mapping{"b1": "p1", "b2": "p2"},
		billing.StaticConnector{Client: fake.Client(t)},
		testLogger(),
		killswitch.WithRecorder(store),
	)
	ctx := context.Background()

	_, err = h.Handle(ctx, message(`{"costAmount":10,"budgetAmount":100}`, "b1"))
	require.NoError(t, err)
	_, err = h.Handle(ctx, message(overBudget, "b1"))
	require.NoError(t, err)

	fake.FailUpdate = http.StatusForbidden
	_, err = h.Handle(ctx, message(overBudget, "b2"))
	require.Error(t, err)

	decisions, err := store.ListDecisions(ctx, model.DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	byAction := map[model.Action]model.Decision{}
	for _, d := range decisions {
		byAction[d.Action] = d
	}
	assert.Equal(t, "10", byAction[model.ActionNone].CostAmount)
	assert.Equal(t, "p1", byAction[model.ActionDisabled].ProjectID)
	assert.Equal(t, "msg-1", byAction[model.ActionDisabled].MessageID)
	assert.Equal(t, "p2", byAction[model.ActionFailed].ProjectID)
	assert.NotEmpty(t, byAction[model.ActionFailed].Error)
}

type failingRecorder struct{}

func (failingRecorder) RecordDecision(context.Context, *model.Decision) error {
	return errors.New("disk full")
}

func TestHandle_RecorderFailureIsIgnored(t *testing.T) {
	h := killswitch.NewHandler(mapping.Mapping{}, &countingConnector{}, testLogger(),
		killswitch.WithRecorder(failingRecorder{}))

	res, err := h.Handle(context.Background(), message(overBudget, "b1"))
	require.NoError(t, err)
	assert.Equal(t, model.ActionNoProject, res.Action)
}

func TestHandle_NotifiesOnDisable(t *testing.T) {
	var mu sync.Mutex
	sent := 0
	var project, body string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		sent++
		project = r.Header.Get(alerts.HeaderProject)
		body = string(raw)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")
	h := killswitch.NewHandler(
		mapping.Mapping{"b1": "p1"},
		billing.StaticConnector{Client: fake.Client(t)},
		testLogger(),
		killswitch.WithNotifiers(alerts.NewWebhookNotifier(broken.URL, ""), alerts.NewWebhookNotifier(hook.URL, "")),
	)
	ctx := context.Background()

	res, err := h.Handle(ctx, message(overBudget, "b1"))
	require.NoError(t, err)
	assert.Equal(t, model.ActionDisabled, res.Action)

	// Already disabled on redelivery: no second notice.
	_, err = h.Handle(ctx, message(overBudget, "b1"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, sent)
	assert.Equal(t, "p1", project)
	assert.Contains(t, body, `"message_id":"msg-1"`)
}
