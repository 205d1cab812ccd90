package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Headers set on every webhook delivery.
const (
	HeaderEvent          = "X-Killswitch-Event"
	HeaderProject        = "X-Killswitch-Project"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderSignature      = "X-Signature-256"
)

// WebhookNotifier posts killswitch notices to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier. If secret is non-empty the
// body is signed with HMAC-SHA256.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

// Send posts the notice. Redeliveries of one Pub/Sub message share an
// Idempotency-Key so receivers can drop duplicates.
func (w *WebhookNotifier) Send(ctx context.Context, notice Notice) error {
	if notice.Kind == "" {
		return errors.New("webhook notice without kind")
	}

	body, err := json.Marshal(webhookEvent{
		Event:        string(notice.Kind),
		OccurredAt:   time.Now().UTC().Format(time.RFC3339),
		MessageID:    notice.MessageID,
		ProjectID:    notice.ProjectID,
		BudgetID:     notice.BudgetID,
		BudgetName:   notice.BudgetName,
		CostAmount:   notice.CostAmount,
		BudgetAmount: notice.BudgetAmount,
		Currency:     notice.Currency,
		Result:       notice.Message,
	})
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Billing-Killswitch/1.0")
	req.Header.Set(HeaderEvent, string(notice.Kind))
	req.Header.Set(HeaderProject, notice.ProjectID)
	req.Header.Set(HeaderIdempotencyKey, idempotencyKey(notice))
	if w.secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+sign(body, []byte(w.secret)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook for project %s: %w", notice.ProjectID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook for project %s returned status %d", notice.ProjectID, resp.StatusCode)
	}
	return nil
}

// webhookEvent is the JSON body of a delivery.
type webhookEvent struct {
	Event        string `json:"event"`
	OccurredAt   string `json:"occurred_at"`
	MessageID    string `json:"message_id,omitempty"`
	ProjectID    string `json:"project_id"`
	BudgetID     string `json:"budget_id"`
	BudgetName   string `json:"budget_name,omitempty"`
	CostAmount   string `json:"cost_amount"`
	BudgetAmount string `json:"budget_amount"`
	Currency     string `json:"currency,omitempty"`
	Result       string `json:"result"`
}

// idempotencyKey derives a stable key from the kind, the project and the
// triggering message. Without a message id it falls back to kind and project.
func idempotencyKey(n Notice) string {
	sum := sha256.Sum256([]byte(string(n.Kind) + "\x00" + n.ProjectID + "\x00" + n.MessageID))
	return hex.EncodeToString(sum[:16])
}

func sign(body, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
