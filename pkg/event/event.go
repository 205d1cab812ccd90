// Package event decodes Cloud Billing budget notifications delivered over Pub/Sub.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// BudgetIDAttribute is the Pub/Sub attribute carrying the budget identifier.
const BudgetIDAttribute = "budgetId"

// Message is a Pub/Sub message as delivered to push endpoints and CloudEvent functions.
// Data is base64 on the wire; encoding/json decodes it into raw bytes.
type Message struct {
	Data        []byte            `json:"data,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	PublishTime string            `json:"publishTime,omitempty"`
}

// BudgetID returns the budget identifier attribute, or "" if absent.
func (m *Message) BudgetID() string {
	if m == nil || m.Attributes == nil {
		return ""
	}
	return m.Attributes[BudgetIDAttribute]
}

// PushEnvelope wraps a Message the way Pub/Sub push subscriptions and the
// google.cloud.pubsub.topic.v1.messagePublished CloudEvent deliver it.
type PushEnvelope struct {
	Message      Message `json:"message"`
	Subscription string  `json:"subscription,omitempty"`
}

// Notification is the budget notification payload published by Cloud Billing.
type Notification struct {
	BudgetID                  string          `json:"-"`
	BudgetDisplayName         string          `json:"budgetDisplayName,omitempty"`
	CostAmount                decimal.Decimal `json:"costAmount"`
	BudgetAmount              decimal.Decimal `json:"budgetAmount"`
	BudgetAmountType          string          `json:"budgetAmountType,omitempty"`
	CostIntervalStart         string          `json:"costIntervalStart,omitempty"`
	CurrencyCode              string          `json:"currencyCode,omitempty"`
	AlertThresholdExceeded    float64         `json:"alertThresholdExceeded,omitempty"`
	ForecastThresholdExceeded float64         `json:"forecastThresholdExceeded,omitempty"`
}

// OverBudget reports whether spend is strictly above the budgeted amount.
func (n *Notification) OverBudget() bool {
	return n.CostAmount.GreaterThan(n.BudgetAmount)
}

// wireNotification separates presence from value for the required amounts.
type wireNotification struct {
	BudgetDisplayName         string              `json:"budgetDisplayName"`
	CostAmount                decimal.NullDecimal `json:"costAmount"`
	BudgetAmount              decimal.NullDecimal `json:"budgetAmount"`
	BudgetAmountType          string              `json:"budgetAmountType"`
	CostIntervalStart         string              `json:"costIntervalStart"`
	CurrencyCode              string              `json:"currencyCode"`
	AlertThresholdExceeded    float64             `json:"alertThresholdExceeded"`
	ForecastThresholdExceeded float64             `json:"forecastThresholdExceeded"`
}

// MalformedEventError is returned when a message payload cannot be decoded
// into a budget notification.
type MalformedEventError struct {
	MessageID string
	Err       error
}

func (e *MalformedEventError) Error() string {
	if e.MessageID != "" {
		return fmt.Sprintf("malformed budget event %s: %v", e.MessageID, e.Err)
	}
	return fmt.Sprintf("malformed budget event: %v", e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is, or wraps, a MalformedEventError.
func IsMalformed(err error) bool {
	var me *MalformedEventError
	return errors.As(err, &me)
}

// Decode validates and parses the notification carried by msg.
func Decode(msg *Message) (*Notification, error) {
	if msg == nil {
		return nil, &MalformedEventError{Err: errors.New("nil message")}
	}
	malformed := func(err error) error {
		return &MalformedEventError{MessageID: msg.MessageID, Err: err}
	}

	data := bytes.TrimSpace(msg.Data)
	if len(data) == 0 {
		return nil, malformed(errors.New("empty data"))
	}

	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed(fmt.Errorf("parse payload: %w", err))
	}
	if !w.CostAmount.Valid {
		return nil, malformed(errors.New("missing costAmount"))
	}
	if !w.BudgetAmount.Valid {
		return nil, malformed(errors.New("missing budgetAmount"))
	}

	return &Notification{
		BudgetID:                  msg.BudgetID(),
		BudgetDisplayName:         w.BudgetDisplayName,
		CostAmount:                w.CostAmount.Decimal,
		BudgetAmount:              w.BudgetAmount.Decimal,
		BudgetAmountType:          w.BudgetAmountType,
		CostIntervalStart:         w.CostIntervalStart,
		CurrencyCode:              w.CurrencyCode,
		AlertThresholdExceeded:    w.AlertThresholdExceeded,
		ForecastThresholdExceeded: w.ForecastThresholdExceeded,
	}, nil
}

// DecodeEnvelope parses a push envelope body. Errors are MalformedEventError.
func DecodeEnvelope(body []byte) (*PushEnvelope, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &MalformedEventError{Err: fmt.Errorf("parse envelope: %w", err)}
	}
	return &env, nil
}
