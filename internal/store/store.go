package store

import (
	"context"

	"github.com/gkobilansky/moment-meter/internal/engine"
	"github.com/gkobilansky/moment-meter/internal/events"
)

// Store defines the durable event log behind the in-memory engine
type Store interface {
	// Event operations
	SaveInteraction(ctx context.Context, i events.Interaction) (string, error)
	SaveOutcome(ctx context.Context, o events.Outcome) (string, error)
	ListInteractions(ctx context.Context) ([]events.Interaction, error)
	ListOutcomes(ctx context.Context) ([]events.Outcome, error)
	MomentCounts(ctx context.Context) ([]MomentCount, error)

	// A/B test operations
	SaveTest(ctx context.Context, t engine.ABTest) error
	GetTest(ctx context.Context, id string) (*engine.ABTest, error)
	ListTests(ctx context.Context) ([]engine.ABTest, error)

	// Funnel operations
	SaveFunnel(ctx context.Context, def engine.FunnelDefinition) error
	ListFunnels(ctx context.Context) ([]engine.FunnelDefinition, error)

	// Lifecycle
	Close() error
}
