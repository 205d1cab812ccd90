package billing_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/ogulcanaydogan/billing-killswitch/internal/testutil"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/billing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, "projects/p1", billing.ProjectName("p1"))
	assert.Equal(t, "projects/p1", billing.ProjectName("projects/p1"))
}

func TestInspector_Enabled(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")

	insp := billing.NewInspector(fake.Client(t), testLogger())
	assert.True(t, insp.IsBillingEnabled(context.Background(), "projects/p1"))

	gets, updates := fake.Calls()
	assert.Equal(t, 1, gets)
	assert.Equal(t, 0, updates)
}

func TestInspector_Disabled(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "")

	insp := billing.NewInspector(fake.Client(t), testLogger())
	assert.False(t, insp.IsBillingEnabled(context.Background(), "projects/p1"))
}

func TestInspector_FailSafe(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			fake := testutil.NewFakeBilling(t)
			fake.SetAccount("p1", "")
			fake.FailGet = status

			insp := billing.NewInspector(fake.Client(t), testLogger())
			assert.True(t, insp.IsBillingEnabled(context.Background(), "projects/p1"))
		})
	}
}

func TestInspector_State(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.FailGet = http.StatusForbidden

	insp := billing.NewInspector(fake.Client(t), testLogger())
	_, err := insp.State(context.Background(), "projects/p1")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, billing.StatusCode(err))
}

func TestDisabler_Disable(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")

	d := billing.NewDisabler(fake.Client(t), testLogger())
	info, err := d.Disable(context.Background(), "projects/p1")
	require.NoError(t, err)
	assert.False(t, info.BillingEnabled)
	assert.Empty(t, fake.Account("p1"))
	assert.Equal(t, []string{"p1"}, fake.Updated())

	body := fake.LastUpdateBody()
	require.Contains(t, body, "billingAccountName")
	assert.Equal(t, "", body["billingAccountName"])
}

func TestDisabler_Idempotent(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")

	client := fake.Client(t)
	d := billing.NewDisabler(client, testLogger())
	ctx := context.Background()

	_, err := d.Disable(ctx, "projects/p1")
	require.NoError(t, err)

	info, err := d.Disable(ctx, "projects/p1")
	require.NoError(t, err)
	assert.False(t, info.BillingEnabled)

	insp := billing.NewInspector(client, testLogger())
	assert.False(t, insp.IsBillingEnabled(ctx, "projects/p1"))
}

func TestDisabler_Failure(t *testing.T) {
	fake := testutil.NewFakeBilling(t)
	fake.SetAccount("p1", "billingAccounts/0X0X0X-0X0X0X-0X0X0X")
	fake.FailUpdate = http.StatusForbidden

	d := billing.NewDisabler(fake.Client(t), testLogger())
	_, err := d.Disable(context.Background(), "projects/p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projects/p1")
	assert.Equal(t, http.StatusForbidden, billing.StatusCode(err))
}

func TestStaticConnector(t *testing.T) {
	_, err := billing.StaticConnector{}.Connect(context.Background())
	assert.Error(t, err)

	fake := testutil.NewFakeBilling(t)
	c, err := billing.StaticConnector{Client: fake.Client(t)}.Connect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 0, billing.StatusCode(assert.AnError))
	assert.Equal(t, 404, billing.StatusCode(&googleapi.Error{Code: 404}))
}

func TestScopes(t *testing.T) {
	assert.Contains(t, billing.Scopes, "https://www.googleapis.com/auth/cloud-billing")
	assert.Contains(t, billing.Scopes, "https://www.googleapis.com/auth/cloud-platform")
}
