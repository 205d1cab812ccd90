package storage

import (
	"context"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/model"
)

// Storage defines the persistence layer for killswitch decisions.
type Storage interface {
	// RecordDecision persists a single decision.
	RecordDecision(ctx context.Context, decision *model.Decision) error

	// ListDecisions returns decisions matching the filter, newest first.
	ListDecisions(ctx context.Context, filter model.DecisionFilter) ([]model.Decision, error)

	// Close releases resources.
	Close() error
}
