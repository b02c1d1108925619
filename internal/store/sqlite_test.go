package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gkobilansky/moment-meter/internal/engine"
	"github.com/gkobilansky/moment-meter/internal/events"
	"github.com/gkobilansky/moment-meter/internal/store"
)

// setupStore creates a test database under t.TempDir().
func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

var ts = time.Date(2024, 3, 4, 10, 30, 0, 123456789, time.UTC)

func TestSaveInteraction_RoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	in := events.Interaction{
		MomentID:  "hero",
		UserID:    "u1",
		SessionID: "s1",
		Timestamp: ts,
		Type:      events.InteractionEngagement,
		Value:     events.Float(42.5),
		Metadata: events.Metadata{
			Step:         "cart",
			Personalized: true,
			Extra:        map[string]any{"campaign": "spring"},
		},
	}

	id, err := s.SaveInteraction(ctx, in)
	if err != nil {
		t.Fatalf("SaveInteraction failed: %v", err)
	}
	if len(id) != 26 {
		t.Errorf("expected a 26 character ulid, got %q", id)
	}

	// A record without a value must come back without one
	_, err = s.SaveInteraction(ctx, events.Interaction{MomentID: "hero", UserID: "u2", Type: events.InteractionView, Timestamp: ts.Add(time.Second)})
	if err != nil {
		t.Fatalf("SaveInteraction failed: %v", err)
	}

	got, err := s.ListInteractions(ctx)
	if err != nil {
		t.Fatalf("ListInteractions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 interactions, got %d", len(got))
	}

	first := got[0]
	if first.UserID != "u1" || first.SessionID != "s1" || first.Type != events.InteractionEngagement {
		t.Errorf("unexpected interaction: %+v", first)
	}
	if !first.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, first.Timestamp)
	}
	if first.Value == nil || *first.Value != 42.5 {
		t.Errorf("expected value 42.5, got %v", first.Value)
	}
	if first.Metadata.Step != "cart" || !first.Metadata.Personalized {
		t.Errorf("unexpected metadata: %+v", first.Metadata)
	}
	if first.Metadata.Extra["campaign"] != "spring" {
		t.Errorf("expected extra metadata to survive, got %v", first.Metadata.Extra)
	}

	if got[1].Value != nil {
		t.Errorf("expected nil value, got %v", *got[1].Value)
	}
}

func TestSaveOutcome_RoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	ttc := 90 * time.Second
	_, err := s.SaveOutcome(ctx, events.Outcome{
		MomentID:         "hero",
		UserID:           "u1",
		DecisionID:       "d1",
		Type:             events.OutcomeConversion,
		Value:            19.99,
		Timestamp:        ts,
		ConversionPath:   []string{"landing", "cart"},
		TimeToConversion: &ttc,
	})
	if err != nil {
		t.Fatalf("SaveOutcome failed: %v", err)
	}

	_, err = s.SaveOutcome(ctx, events.Outcome{MomentID: "hero", UserID: "u2", Type: events.OutcomeBounce, Timestamp: ts})
	if err != nil {
		t.Fatalf("SaveOutcome failed: %v", err)
	}

	got, err := s.ListOutcomes(ctx)
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(got))
	}

	if got[0].Value != 19.99 || got[0].DecisionID != "d1" {
		t.Errorf("unexpected outcome: %+v", got[0])
	}
	if len(got[0].ConversionPath) != 2 || got[0].ConversionPath[1] != "cart" {
		t.Errorf("unexpected conversion path: %v", got[0].ConversionPath)
	}
	if got[0].TimeToConversion == nil || *got[0].TimeToConversion != ttc {
		t.Errorf("expected time to conversion %v, got %v", ttc, got[0].TimeToConversion)
	}
	if got[1].ConversionPath != nil || got[1].TimeToConversion != nil {
		t.Errorf("expected empty optional fields, got %+v", got[1])
	}
}

func TestMomentCounts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, m := range []string{"a", "a", "b"} {
		if _, err := s.SaveInteraction(ctx, events.Interaction{MomentID: m, Type: events.InteractionView, Timestamp: ts}); err != nil {
			t.Fatalf("SaveInteraction failed: %v", err)
		}
	}
	if _, err := s.SaveOutcome(ctx, events.Outcome{MomentID: "c", Type: events.OutcomeConversion, Timestamp: ts}); err != nil {
		t.Fatalf("SaveOutcome failed: %v", err)
	}

	counts, err := s.MomentCounts(ctx)
	if err != nil {
		t.Fatalf("MomentCounts failed: %v", err)
	}

	want := []store.MomentCount{
		{MomentID: "a", Interactions: 2},
		{MomentID: "b", Interactions: 1},
		{MomentID: "c", Outcomes: 1},
	}
	if len(counts) != len(want) {
		t.Fatalf("expected %d rows, got %d: %+v", len(want), len(counts), counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], counts[i])
		}
	}
}

func TestSaveTest_Upsert(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	test := engine.ABTest{
		ID:              "hero-test",
		VariantA:        engine.Variant{MomentID: "a"},
		VariantB:        engine.Variant{MomentID: "b"},
		TrafficSplit:    0.5,
		ConfidenceLevel: engine.DefaultConfidenceLevel,
		Winner:          engine.WinnerInconclusive,
		State:           engine.StateCreated,
		Version:         1,
		CreatedAt:       ts,
	}
	if err := s.SaveTest(ctx, test); err != nil {
		t.Fatalf("SaveTest failed: %v", err)
	}

	test.Version = 2
	test.State = engine.StateAnalyzed
	test.Winner = engine.WinnerA
	test.Significance = 0.99
	if err := s.SaveTest(ctx, test); err != nil {
		t.Fatalf("SaveTest failed: %v", err)
	}

	got, err := s.GetTest(ctx, "hero-test")
	if err != nil {
		t.Fatalf("GetTest failed: %v", err)
	}
	if got.Version != 2 || got.Winner != engine.WinnerA || got.State != engine.StateAnalyzed {
		t.Errorf("expected latest snapshot, got %+v", got)
	}
	if got.VariantB.MomentID != "b" {
		t.Errorf("expected variant B moment 'b', got %q", got.VariantB.MomentID)
	}

	tests, err := s.ListTests(ctx)
	if err != nil {
		t.Fatalf("ListTests failed: %v", err)
	}
	if len(tests) != 1 {
		t.Errorf("expected 1 test after upsert, got %d", len(tests))
	}
}

func TestGetTest_NotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.GetTest(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveFunnel_Upsert(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	def := engine.FunnelDefinition{ID: "checkout", Steps: []string{"cart", "pay"}, DefinedAt: ts}
	if err := s.SaveFunnel(ctx, def); err != nil {
		t.Fatalf("SaveFunnel failed: %v", err)
	}

	def.Steps = []string{"cart", "shipping", "pay"}
	if err := s.SaveFunnel(ctx, def); err != nil {
		t.Fatalf("SaveFunnel failed: %v", err)
	}

	defs, err := s.ListFunnels(ctx)
	if err != nil {
		t.Fatalf("ListFunnels failed: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 funnel, got %d", len(defs))
	}
	if len(defs[0].Steps) != 3 || defs[0].Steps[1] != "shipping" {
		t.Errorf("expected updated steps, got %v", defs[0].Steps)
	}
	if !defs[0].DefinedAt.Equal(ts) {
		t.Errorf("expected defined_at %v, got %v", ts, defs[0].DefinedAt)
	}
}

func TestSaveTest_StaleVersionIgnored(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	test := engine.ABTest{
		ID:        "hero-test",
		VariantA:  engine.Variant{MomentID: "a"},
		VariantB:  engine.Variant{MomentID: "b"},
		State:     engine.StateAnalyzed,
		Winner:    engine.WinnerB,
		Version:   3,
		CreatedAt: ts,
	}
	if err := s.SaveTest(ctx, test); err != nil {
		t.Fatalf("SaveTest failed: %v", err)
	}

	// Analyses can be delivered out of order
	stale := test
	stale.Version = 2
	stale.Winner = engine.WinnerA
	if err := s.SaveTest(ctx, stale); err != nil {
		t.Fatalf("SaveTest failed: %v", err)
	}

	got, err := s.GetTest(ctx, "hero-test")
	if err != nil {
		t.Fatalf("GetTest failed: %v", err)
	}
	if got.Version != 3 || got.Winner != engine.WinnerB {
		t.Errorf("expected version 3 to be kept, got %+v", got)
	}

	// Setting the test up again starts over
	fresh := test
	fresh.Version = 1
	fresh.State = engine.StateCreated
	fresh.Winner = engine.WinnerInconclusive
	if err := s.SaveTest(ctx, fresh); err != nil {
		t.Fatalf("SaveTest failed: %v", err)
	}

	got, err = s.GetTest(ctx, "hero-test")
	if err != nil {
		t.Fatalf("GetTest failed: %v", err)
	}
	if got.Version != 1 || got.State != engine.StateCreated {
		t.Errorf("expected re-created test to replace the old one, got %+v", got)
	}
}
