package alerts

import "context"

// NoticeKind identifies what the killswitch did.
type NoticeKind string

const (
	NoticeBillingDisabled NoticeKind = "billing_disabled"
)

// Notice describes a killswitch action on a project.
type Notice struct {
	Kind         NoticeKind `json:"kind"`
	MessageID    string     `json:"message_id,omitempty"`
	ProjectID    string     `json:"project_id"`
	BudgetID     string     `json:"budget_id"`
	BudgetName   string     `json:"budget_name,omitempty"`
	CostAmount   string     `json:"cost_amount"`
	BudgetAmount string     `json:"budget_amount"`
	Currency     string     `json:"currency,omitempty"`
	Message      string     `json:"message"`
}

// Notifier sends notices to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers a notice. Implementations must be safe for concurrent use.
	Send(ctx context.Context, notice Notice) error
}
