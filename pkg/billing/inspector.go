package billing

import (
	"context"
	"fmt"
	"log/slog"

	cloudbilling "google.golang.org/api/cloudbilling/v1"
)

// Inspector reads the billing state of projects.
type Inspector struct {
	client Client
	logger *slog.Logger
}

// NewInspector creates an inspector over the given client.
func NewInspector(client Client, logger *slog.Logger) *Inspector {
	return &Inspector{client: client, logger: logger}
}

// IsBillingEnabled reports whether billing is active for projectName.
// When the state cannot be read it returns true so the caller still attempts
// to disable billing.
func (i *Inspector) IsBillingEnabled(ctx context.Context, projectName string) bool {
	info, err := i.client.GetBillingInfo(ctx, projectName)
	if err != nil {
		i.logger.Warn("unable to determine billing state, assuming billing is enabled",
			"project", projectName,
			"status", StatusCode(err),
			"error", err,
		)
		return true
	}

	i.logger.Debug("billing info",
		"project", projectName,
		"billing_enabled", info.BillingEnabled,
		"billing_account", info.BillingAccountName,
	)
	return info.BillingEnabled
}

// State reads the billing info and returns errors instead of assuming a state.
func (i *Inspector) State(ctx context.Context, projectName string) (*cloudbilling.ProjectBillingInfo, error) {
	info, err := i.client.GetBillingInfo(ctx, projectName)
	if err != nil {
		return nil, fmt.Errorf("get billing info for %s: %w", projectName, err)
	}
	return info, nil
}

// Disabler detaches billing accounts from projects.
type Disabler struct {
	client Client
	logger *slog.Logger
}

// NewDisabler creates a disabler over the given client.
func NewDisabler(client Client, logger *slog.Logger) *Disabler {
	return &Disabler{client: client, logger: logger}
}

// Disable clears the billing account of projectName. Clearing an already
// empty association succeeds.
func (d *Disabler) Disable(ctx context.Context, projectName string) (*cloudbilling.ProjectBillingInfo, error) {
	info, err := d.client.UpdateBillingInfo(ctx, projectName, &cloudbilling.ProjectBillingInfo{
		BillingAccountName: "",
		ForceSendFields:    []string{"BillingAccountName"},
	})
	if err != nil {
		return nil, fmt.Errorf("disable billing for %s: %w", projectName, err)
	}

	d.logger.Info("billing disabled", "project", projectName, "billing_enabled", info.BillingEnabled)
	return info, nil
}
