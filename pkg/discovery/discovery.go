// Package discovery derives the budget to project mapping from the budgets
// defined on a billing account.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	budgets "cloud.google.com/go/billing/budgets/apiv1"
	"cloud.google.com/go/billing/budgets/apiv1/budgetspb"
	"google.golang.org/api/cloudresourcemanager/v3"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/mapping"
)

// BudgetLister lists the budgets of a billing account.
type BudgetLister interface {
	ListBudgets(ctx context.Context, billingAccount string) ([]*budgetspb.Budget, error)
}

// ProjectResolver turns a project resource name (projects/{number}) into a project id.
type ProjectResolver interface {
	ProjectID(ctx context.Context, name string) (string, error)
}

// Discoverer builds mappings from budgets scoped to a single project.
type Discoverer struct {
	budgets  BudgetLister
	projects ProjectResolver
	logger   *slog.Logger
}

// NewDiscoverer creates a discoverer from its two lookups.
func NewDiscoverer(budgets BudgetLister, projects ProjectResolver, logger *slog.Logger) *Discoverer {
	return &Discoverer{budgets: budgets, projects: projects, logger: logger}
}

// Discover maps each single-project budget of billingAccount to its project id.
func (d *Discoverer) Discover(ctx context.Context, billingAccount string) (mapping.Mapping, error) {
	list, err := d.budgets.ListBudgets(ctx, billingAccount)
	if err != nil {
		return nil, err
	}

	m := mapping.Mapping{}
	for _, b := range list {
		budgetID := BudgetID(b.GetName())
		projects := b.GetBudgetFilter().GetProjects()
		if len(projects) != 1 {
			d.logger.Warn("skipping budget not scoped to exactly one project",
				"budget", b.GetName(),
				"display_name", b.GetDisplayName(),
				"projects", len(projects),
			)
			continue
		}

		projectID, err := d.projects.ProjectID(ctx, projects[0])
		if err != nil {
			d.logger.Warn("skipping budget with unresolvable project",
				"budget", b.GetName(),
				"project", projects[0],
				"error", err,
			)
			continue
		}
		m[budgetID] = projectID
	}
	return m, nil
}

// BudgetID returns the last path segment of a budget resource name, which is
// the identifier budget notifications carry.
func BudgetID(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// BillingAccountName returns the billingAccounts/{id} resource name.
func BillingAccountName(id string) string {
	if strings.HasPrefix(id, "billingAccounts/") {
		return id
	}
	return "billingAccounts/" + id
}

// BudgetClient lists budgets through the Cloud Billing Budget API.
type BudgetClient struct {
	client *budgets.BudgetClient
}

// NewBudgetClient creates a budget API client.
func NewBudgetClient(ctx context.Context, opts ...option.ClientOption) (*BudgetClient, error) {
	c, err := budgets.NewBudgetClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create budget client: %w", err)
	}
	return &BudgetClient{client: c}, nil
}

func (c *BudgetClient) ListBudgets(ctx context.Context, billingAccount string) ([]*budgetspb.Budget, error) {
	it := c.client.ListBudgets(ctx, &budgetspb.ListBudgetsRequest{
		Parent: BillingAccountName(billingAccount),
	})

	var out []*budgetspb.Budget
	for {
		b, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list budgets: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Close releases the underlying connection.
func (c *BudgetClient) Close() error {
	return c.client.Close()
}

// ResourceManager resolves project numbers through Resource Manager v3.
type ResourceManager struct {
	svc *cloudresourcemanager.Service
}

// NewResourceManager creates a Resource Manager backed resolver.
func NewResourceManager(ctx context.Context, opts ...option.ClientOption) (*ResourceManager, error) {
	svc, err := cloudresourcemanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create resource manager service: %w", err)
	}
	return &ResourceManager{svc: svc}, nil
}

func (r *ResourceManager) ProjectID(ctx context.Context, name string) (string, error) {
	p, err := r.svc.Projects.Get(name).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get project %s: %w", name, err)
	}
	return p.ProjectId, nil
}
