package discovery_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"cloud.google.com/go/billing/budgets/apiv1/budgetspb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/discovery"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/mapping"
)

type fakeLister struct {
	budgets []*budgetspb.Budget
	err     error
	parent  string
}

func (f *fakeLister) ListBudgets(_ context.Context, billingAccount string) ([]*budgetspb.Budget, error) {
	f.parent = billingAccount
	return f.budgets, f.err
}

func budget(id string, projects ...string) *budgetspb.Budget {
	return &budgetspb.Budget{
		Name:         "billingAccounts/01D4EE-079462-DFD6EC/budgets/" + id,
		DisplayName:  id + " Budget Alert",
		BudgetFilter: &budgetspb.Filter{Projects: projects},
	}
}

// newResourceManager serves GET v3/projects/{number} from a number to id table.
func newResourceManager(t *testing.T, projects map[string]string) *discovery.ResourceManager {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v3/projects/{number}", func(w http.ResponseWriter, r *http.Request) {
		number := r.PathValue("number")
		id, ok := projects[number]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 403, "message": "denied"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name":      "projects/" + number,
			"projectId": id,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	rm, err := discovery.NewResourceManager(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return rm
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDiscover(t *testing.T) {
	lister := &fakeLister{budgets: []*budgetspb.Budget{
		budget("b-1", "projects/111"),
		budget("b-2", "projects/222"),
		budget("group", "projects/111", "projects/222"),
		budget("account-wide"),
		budget("gone", "projects/999"),
	}}
	rm := newResourceManager(t, map[string]string{
		"111": "acme-john-doe-1",
		"222": "acme-mary-willis-1",
	})

	d := discovery.NewDiscoverer(lister, rm, testLogger())
	m, err := d.Discover(context.Background(), "01D4EE-079462-DFD6EC")
	require.NoError(t, err)

	assert.Equal(t, mapping.Mapping{
		"b-1": "acme-john-doe-1",
		"b-2": "acme-mary-willis-1",
	}, m)
	assert.Equal(t, "01D4EE-079462-DFD6EC", lister.parent)
}

func TestDiscover_ListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("permission denied")}
	d := discovery.NewDiscoverer(lister, nil, testLogger())

	_, err := d.Discover(context.Background(), "acct")
	assert.Error(t, err)
}

func TestDiscover_OutputParses(t *testing.T) {
	lister := &fakeLister{budgets: []*budgetspb.Budget{budget("b-1", "projects/111")}}
	rm := newResourceManager(t, map[string]string{"111": "p1"})

	m, err := discovery.NewDiscoverer(lister, rm, testLogger()).Discover(context.Background(), "acct")
	require.NoError(t, err)

	raw, err := m.Marshal()
	require.NoError(t, err)
	parsed, err := mapping.Parse(raw)
	require.NoError(t, err)
	p, ok := parsed.Resolve("b-1")
	assert.True(t, ok)
	assert.Equal(t, "p1", p)
}

func TestBudgetID(t *testing.T) {
	assert.Equal(t, "abc", discovery.BudgetID("billingAccounts/X/budgets/abc"))
	assert.Equal(t, "abc", discovery.BudgetID("abc"))
}

func TestBillingAccountName(t *testing.T) {
	assert.Equal(t, "billingAccounts/X", discovery.BillingAccountName("X"))
	assert.Equal(t, "billingAccounts/X", discovery.BillingAccountName("billingAccounts/X"))
}
