// Package app wires configuration into a ready killswitch handler.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ogulcanaydogan/billing-killswitch/internal/config"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/alerts"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/billing"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/killswitch"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/mapping"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/storage"
)

// App is a fully wired killswitch.
type App struct {
	Handler *killswitch.Handler
	Mapping mapping.Mapping
	// Store is nil unless the decision log is enabled.
	Store  storage.Storage
	Logger *slog.Logger
}

// NewLogger creates a structured logger from config.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// Notifiers creates notice integrations from config.
func Notifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

// OpenStorage opens the decision log database, creating its directory.
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return storage.NewSQLite(cfg.Storage.Path)
}

// New builds the handler from config. A malformed mapping is logged and
// treated as empty so every event resolves to "No project specified".
func New(cfg *config.Config, connector billing.Connector, logger *slog.Logger) (*App, error) {
	m, err := cfg.BudgetMapping()
	if err != nil {
		logger.Error("invalid budget mapping, treating as empty", "error", err)
	}

	opts := []killswitch.Option{killswitch.WithNotifiers(Notifiers(cfg)...)}

	var store storage.Storage
	if cfg.Storage.Enabled {
		store, err = OpenStorage(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, killswitch.WithRecorder(store))
	}

	return &App{
		Handler: killswitch.NewHandler(m, connector, logger, opts...),
		Mapping: m,
		Store:   store,
		Logger:  logger,
	}, nil
}

// Close releases the decision log, if open.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
