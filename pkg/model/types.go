package model

import "time"

// Action is the outcome category of a single killswitch invocation.
type Action string

const (
	ActionNone            Action = "no_action"        // Spend within budget
	ActionNoProject       Action = "no_project"       // Budget not mapped to a project
	ActionAlreadyDisabled Action = "already_disabled" // Billing was already detached
	ActionDisabled        Action = "disabled"         // Billing detached by this invocation
	ActionFailed          Action = "failed"           // Invocation returned an error
)

// Result is the observable outcome of handling one budget alert.
type Result struct {
	Action    Action `json:"action"`
	ProjectID string `json:"project_id,omitempty"`
	Message   string `json:"message"`
}

func (r *Result) String() string { return r.Message }

// Decision is an audit record of one handled budget alert.
type Decision struct {
	ID           string    `json:"id" db:"id"`
	MessageID    string    `json:"message_id,omitempty" db:"message_id"`
	BudgetID     string    `json:"budget_id" db:"budget_id"`
	ProjectID    string    `json:"project_id,omitempty" db:"project_id"`
	Action       Action    `json:"action" db:"action"`
	CostAmount   string    `json:"cost_amount" db:"cost_amount"`
	BudgetAmount string    `json:"budget_amount" db:"budget_amount"`
	Message      string    `json:"message,omitempty" db:"message"`
	Error        string    `json:"error,omitempty" db:"error"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// DecisionFilter controls which decisions are returned from the log.
type DecisionFilter struct {
	ProjectID string `json:"project_id,omitempty"`
	BudgetID  string `json:"budget_id,omitempty"`
	Action    Action `json:"action,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
