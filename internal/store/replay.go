package store

import (
	"context"
	"fmt"

	"github.com/gkobilansky/moment-meter/internal/engine"
)

type ReplayResult struct {
	Interactions int
	Outcomes     int
	Tests        int
	Funnels      int
}

// Replay loads the whole log into e. Run it before subscribing a Persister,
// otherwise every replayed record is written back.
func Replay(ctx context.Context, s Store, e *engine.Engine) (ReplayResult, error) {
	var res ReplayResult

	interactions, err := s.ListInteractions(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load interactions: %w", err)
	}
	for _, i := range interactions {
		e.RecordInteraction(i)
	}
	res.Interactions = len(interactions)

	outcomes, err := s.ListOutcomes(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load outcomes: %w", err)
	}
	for _, o := range outcomes {
		e.RecordOutcome(o)
	}
	res.Outcomes = len(outcomes)

	funnels, err := s.ListFunnels(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load funnels: %w", err)
	}
	for _, def := range funnels {
		e.RestoreFunnel(def)
	}
	res.Funnels = len(funnels)

	tests, err := s.ListTests(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load tests: %w", err)
	}
	for _, t := range tests {
		e.RestoreTest(t)
	}
	res.Tests = len(tests)

	return res, nil
}
