package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/gkobilansky/moment-meter/internal/engine"
	"github.com/gkobilansky/moment-meter/internal/events"
)

// Persister returns an engine subscriber that appends every committed record
// to s. Write failures are logged; the in-memory engine stays authoritative.
func Persister(s Store, log *zap.Logger) engine.Subscriber {
	ctx := context.Background()

	return engine.Subscriber{
		Name: "sqlite",
		OnInteraction: func(i events.Interaction) {
			if _, err := s.SaveInteraction(ctx, i); err != nil {
				log.Error("failed to persist interaction", zap.String("moment_id", i.MomentID), zap.Error(err))
			}
		},
		OnOutcome: func(o events.Outcome) {
			if _, err := s.SaveOutcome(ctx, o); err != nil {
				log.Error("failed to persist outcome", zap.String("moment_id", o.MomentID), zap.Error(err))
			}
		},
		OnTestUpdated: func(t engine.ABTest) {
			if err := s.SaveTest(ctx, t); err != nil {
				log.Error("failed to persist ab test", zap.String("test_id", t.ID), zap.Error(err))
			}
		},
		OnFunnelDefined: func(def engine.FunnelDefinition) {
			if err := s.SaveFunnel(ctx, def); err != nil {
				log.Error("failed to persist funnel", zap.String("funnel_id", def.ID), zap.Error(err))
			}
		},
	}
}
