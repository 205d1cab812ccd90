// Package testutil provides an in-process fake of the Cloud Billing REST API.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/billing"
)

// FakeBilling serves GET and PUT v1/projects/{project}/billingInfo.
type FakeBilling struct {
	Server *httptest.Server

	mu          sync.Mutex
	accounts    map[string]string
	getCalls    int
	updateCalls int
	updated     []string
	lastBody    map[string]any

	// FailGet and FailUpdate force an error response with the given status.
	FailGet    int
	FailUpdate int
}

// NewFakeBilling starts a fake billing API closed at test cleanup.
func NewFakeBilling(t testing.TB) *FakeBilling {
	t.Helper()
	f := &FakeBilling{accounts: make(map[string]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/projects/{project}/billingInfo", f.handleGet)
	mux.HandleFunc("PUT /v1/projects/{project}/billingInfo", f.handleUpdate)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// SetAccount attaches a billing account to a project. An empty account means billing is disabled.
func (f *FakeBilling) SetAccount(projectID, account string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[projectID] = account
}

// Account returns the billing account attached to a project.
func (f *FakeBilling) Account(projectID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[projectID]
}

// Calls returns the number of read and update requests served.
func (f *FakeBilling) Calls() (gets, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls, f.updateCalls
}

// Updated returns the project ids that received an update, in order.
func (f *FakeBilling) Updated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updated...)
}

// LastUpdateBody returns the decoded JSON body of the most recent update.
func (f *FakeBilling) LastUpdateBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

// Client returns a billing client pointed at the fake.
func (f *FakeBilling) Client(t testing.TB) billing.Client {
	t.Helper()
	svc, err := billing.NewService(t.Context(),
		option.WithEndpoint(f.Server.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(f.Server.Client()),
	)
	require.NoError(t, err)
	return svc
}

func (f *FakeBilling) handleGet(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")

	f.mu.Lock()
	f.getCalls++
	fail := f.FailGet
	account, known := f.accounts[project]
	f.mu.Unlock()

	if fail != 0 {
		writeError(w, fail, "forced failure")
		return
	}
	if !known {
		writeError(w, http.StatusNotFound, fmt.Sprintf("project %s not found", project))
		return
	}
	writeInfo(w, project, account)
}

func (f *FakeBilling) handleUpdate(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	f.updateCalls++
	f.lastBody = body
	fail := f.FailUpdate
	if fail == 0 {
		account, _ := body["billingAccountName"].(string)
		f.accounts[project] = account
		f.updated = append(f.updated, project)
	}
	account := f.accounts[project]
	f.mu.Unlock()

	if fail != 0 {
		writeError(w, fail, "forced failure")
		return
	}
	writeInfo(w, project, account)
}

func writeInfo(w http.ResponseWriter, project, account string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":               "projects/" + project + "/billingInfo",
		"projectId":          project,
		"billingAccountName": account,
		"billingEnabled":     account != "",
	})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}
