// Package killswitch is the Cloud Functions entry point. It registers the
// StopBilling CloudEvent function triggered by budget alert Pub/Sub messages.
package killswitch

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevent "github.com/cloudevents/sdk-go/v2/event"

	"github.com/ogulcanaydogan/billing-killswitch/internal/app"
	"github.com/ogulcanaydogan/billing-killswitch/internal/config"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/billing"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/event"
)

func init() {
	functions.CloudEvent("StopBilling", stopBilling)
}

var (
	once     sync.Once
	instance *app.App
	initErr  error

	connector billing.Connector = billing.NewDefaultConnector()
)

// loadApp builds the handler on first use and reuses it across
// invocations of a warm instance.
func loadApp() (*app.App, error) {
	once.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			initErr = fmt.Errorf("load config: %w", err)
			return
		}
		instance, initErr = app.New(cfg, connector, app.NewLogger(cfg, os.Stderr))
	})
	return instance, initErr
}

// stopBilling handles a google.cloud.pubsub.topic.v1.messagePublished event.
// A returned error makes the platform redeliver the event.
func stopBilling(ctx context.Context, e cloudevent.Event) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	var env event.PushEnvelope
	if err := e.DataAs(&env); err != nil {
		a.Logger.Error("undecodable event", "event_id", e.ID(), "error", err)
		return &event.MalformedEventError{MessageID: e.ID(), Err: err}
	}

	result, err := a.Handler.Handle(ctx, &env.Message)
	if err != nil {
		a.Logger.Error("killswitch failed",
			"event_id", e.ID(),
			"budget_id", env.Message.BudgetID(),
			"error", err,
		)
		return err
	}

	a.Logger.Info(result.Message,
		"event_id", e.ID(),
		"action", result.Action,
		"project", result.ProjectID,
	)
	return nil
}
