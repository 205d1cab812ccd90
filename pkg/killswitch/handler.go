// Package killswitch decides whether a budget alert requires detaching a
// project's billing account and carries out that decision.
package killswitch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/alerts"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/billing"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/event"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/mapping"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/model"
)

// Outcome messages returned to the hosting platform.
const (
	msgNoAction        = "No action necessary. (Current cost: %s)"
	msgNoProject       = "No project specified"
	msgAlreadyDisabled = "Billing already disabled"
	msgDisabled        = "Billing disabled: %s"
)

// Recorder persists decisions.
type Recorder interface {
	RecordDecision(ctx context.Context, decision *model.Decision) error
}

// Handler processes budget alerts one at a time. It holds no per-invocation
// state and is safe for concurrent use.
type Handler struct {
	mapping   mapping.Mapping
	connector billing.Connector
	recorder  Recorder
	notifiers []alerts.Notifier
	logger    *slog.Logger
}

// Option configures optional Handler collaborators.
type Option func(*Handler)

// WithRecorder logs every decision to r.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithNotifiers sends a notice to each notifier when billing is disabled.
func WithNotifiers(notifiers ...alerts.Notifier) Option {
	return func(h *Handler) { h.notifiers = append(h.notifiers, notifiers...) }
}

// NewHandler creates a handler over a fixed budget mapping.
func NewHandler(m mapping.Mapping, connector billing.Connector, logger *slog.Logger, opts ...Option) *Handler {
	if m == nil {
		m = mapping.Mapping{}
	}
	h := &Handler{
		mapping:   m,
		connector: connector,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes a single Pub/Sub message. It performs at most one
// mutating call and is safe to repeat for the same message.
func (h *Handler) Handle(ctx context.Context, msg *event.Message) (*model.Result, error) {
	n, err := event.Decode(msg)
	if err != nil {
		h.logger.Error("decode budget event", "error", err)
		return nil, err
	}

	result, err := h.decide(ctx, n)
	h.record(ctx, msg, n, result, err)
	if err != nil {
		return nil, err
	}
	if result.Action == model.ActionDisabled {
		h.notify(ctx, msg, n, result)
	}
	return result, nil
}

func (h *Handler) decide(ctx context.Context, n *event.Notification) (*model.Result, error) {
	if !n.OverBudget() {
		h.logger.Info("no action necessary",
			"budget_id", n.BudgetID,
			"cost", n.CostAmount.String(),
			"budget", n.BudgetAmount.String(),
		)
		return &model.Result{
			Action:  model.ActionNone,
			Message: fmt.Sprintf(msgNoAction, n.CostAmount.String()),
		}, nil
	}

	projectID, ok := h.mapping.Resolve(n.BudgetID)
	if !ok {
		h.logger.Warn("no project specified", "budget_id", n.BudgetID)
		return &model.Result{Action: model.ActionNoProject, Message: msgNoProject}, nil
	}

	client, err := h.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect billing: %w", err)
	}

	projectName := billing.ProjectName(projectID)
	if !billing.NewInspector(client, h.logger).IsBillingEnabled(ctx, projectName) {
		h.logger.Info("billing already disabled", "project", projectID)
		return &model.Result{Action: model.ActionAlreadyDisabled, ProjectID: projectID, Message: msgAlreadyDisabled}, nil
	}

	h.logger.Warn("disabling billing",
		"project", projectID,
		"budget_id", n.BudgetID,
		"cost", n.CostAmount.String(),
		"budget", n.BudgetAmount.String(),
	)
	info, err := billing.NewDisabler(client, h.logger).Disable(ctx, projectName)
	if err != nil {
		return nil, err
	}

	resp, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode billing response: %w", err)
	}
	return &model.Result{
		Action:    model.ActionDisabled,
		ProjectID: projectID,
		Message:   fmt.Sprintf(msgDisabled, resp),
	}, nil
}

func (h *Handler) record(ctx context.Context, msg *event.Message, n *event.Notification, result *model.Result, herr error) {
	if h.recorder == nil {
		return
	}

	d := &model.Decision{
		MessageID:    msg.MessageID,
		BudgetID:     n.BudgetID,
		CostAmount:   n.CostAmount.String(),
		BudgetAmount: n.BudgetAmount.String(),
	}
	if herr != nil {
		d.Action = model.ActionFailed
		d.Error = herr.Error()
		d.ProjectID, _ = h.mapping.Resolve(n.BudgetID)
	} else {
		d.Action = result.Action
		d.ProjectID = result.ProjectID
		d.Message = result.Message
	}

	// The decision log is best effort.
	if err := h.recorder.RecordDecision(context.WithoutCancel(ctx), d); err != nil {
		h.logger.Error("record decision", "budget_id", n.BudgetID, "error", err)
	}
}

func (h *Handler) notify(ctx context.Context, msg *event.Message, n *event.Notification, result *model.Result) {
	notice := alerts.Notice{
		Kind:         alerts.NoticeBillingDisabled,
		MessageID:    msg.MessageID,
		ProjectID:    result.ProjectID,
		BudgetID:     n.BudgetID,
		BudgetName:   n.BudgetDisplayName,
		CostAmount:   n.CostAmount.String(),
		BudgetAmount: n.BudgetAmount.String(),
		Currency:     n.CurrencyCode,
		Message:      result.Message,
	}

	for _, notifier := range h.notifiers {
		if err := notifier.Send(ctx, notice); err != nil {
			h.logger.Error("send notice failed",
				"notifier", notifier.Name(),
				"project", result.ProjectID,
				"error", err,
			)
		}
	}
}
