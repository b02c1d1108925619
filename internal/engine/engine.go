// Package engine measures the effectiveness of moments from a stream of
// interactions and outcomes. Every query recomputes from the records
// present when it starts; nothing is pre-aggregated.
package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/gkobilansky/moment-meter/internal/events"
)

// MetricsObserver receives ingestion and query measurements.
type MetricsObserver interface {
	InteractionRecorded(t events.InteractionType)
	OutcomeRecorded(t events.OutcomeType)
	QueryObserved(op string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) InteractionRecorded(events.InteractionType) {}
func (noopMetrics) OutcomeRecorded(events.OutcomeType) {}
func (noopMetrics) QueryObserved(string, time.Duration) {}

type Engine struct {
	store      *EventStore
	visits     *VisitLedger
	notifier   *notifier
	funnels    *funnelRegistry
	tests      *testRegistry
	heuristics StepHeuristics
	log        *zap.Logger
	metrics    MetricsObserver
	now        func() time.Time
}

type Option func(*Engine)

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m MetricsObserver) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStepHeuristics replaces the funnel time-in-step and dropoff estimates.
func WithStepHeuristics(h StepHeuristics) Option {
	return func(e *Engine) { e.heuristics = h }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		store:      NewEventStore(),
		visits:     NewVisitLedger(),
		funnels:    newFunnelRegistry(),
		tests:      newTestRegistry(),
		heuristics: FixedProportions{},
		log:        zap.NewNop(),
		metrics:    noopMetrics{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.notifier = newNotifier(e.log)
	return e
}

// Subscribe registers post-commit handlers. The returned func unsubscribes
// after delivering everything already queued.
func (e *Engine) Subscribe(sub Subscriber) (cancel func()) {
	return e.notifier.subscribe(sub)
}

// Flush waits until subscribers have handled every notification so far.
func (e *Engine) Flush() {
	e.notifier.flush()
}

// Close drains and removes all subscribers.
func (e *Engine) Close() {
	e.notifier.close()
}

// RecordInteraction appends i as-is; fields are not validated.
func (e *Engine) RecordInteraction(i events.Interaction) {
	e.store.AppendInteraction(i)
	e.visits.Record(i.UserID, i.Timestamp)
	e.metrics.InteractionRecorded(i.Type)
	e.notifier.interactionRecorded(i)
}

// RecordOutcome appends o as-is. An outcome needs no matching interaction.
func (e *Engine) RecordOutcome(o events.Outcome) {
	e.store.AppendOutcome(o)
	e.metrics.OutcomeRecorded(o.Type)
	e.notifier.outcomeRecorded(o)
}

func (e *Engine) observe(op string, start time.Time) {
	e.metrics.QueryObserved(op, time.Since(start))
}

func (e *Engine) Moments() []string {
	return e.store.Moments()
}

func (e *Engine) Interactions(momentID string) []events.Interaction {
	return e.store.Interactions(momentID)
}

func (e *Engine) Outcomes(momentID string) []events.Outcome {
	return e.store.Outcomes(momentID)
}

// Effectiveness returns all-zero stats for an unknown moment.
func (e *Engine) Effectiveness(momentID string) EffectivenessStats {
	defer e.observe("effectiveness", time.Now())
	return e.effectiveness(momentID)
}

func (e *Engine) effectiveness(momentID string) EffectivenessStats {
	return computeEffectiveness(momentID, e.store.Interactions(momentID), e.store.Outcomes(momentID), e.visits, e.now())
}

// Retention computes first-visit anchored retention for the given users.
func (e *Engine) Retention(userIDs []string) RetentionStats {
	return computeRetention(userIDs, e.visits)
}

// DefineFunnel stores a named step list for later reuse.
func (e *Engine) DefineFunnel(id string, steps []string) FunnelDefinition {
	def := FunnelDefinition{ID: id, Steps: append([]string(nil), steps...), DefinedAt: e.now()}
	e.funnels.put(def)
	e.notifier.funnelDefined(def)
	return def
}

// RestoreFunnel loads a previously persisted definition without notifying.
func (e *Engine) RestoreFunnel(def FunnelDefinition) {
	e.funnels.put(def)
}

func (e *Engine) FunnelDefinition(id string) (FunnelDefinition, bool) {
	return e.funnels.get(id)
}

func (e *Engine) Funnels() []FunnelDefinition {
	return e.funnels.list()
}

// AnalyzeFunnel records the definition and computes each step. A zero start
// or end leaves that side of the range open.
func (e *Engine) AnalyzeFunnel(funnelID string, steps []string, start, end time.Time) []FunnelStep {
	defer e.observe("funnel", time.Now())
	e.DefineFunnel(funnelID, steps)
	return analyzeFunnel(e.store, funnelID, steps, start, end, e.heuristics)
}

// SetupTest creates (or replaces) a two-variant test. The traffic split is
// recorded only; allocating traffic is up to the caller.
func (e *Engine) SetupTest(testID, momentA, momentB string, trafficSplit float64) ABTest {
	t := newABTest(testID, momentA, momentB, trafficSplit, e.now())
	e.tests.put(t)
	e.notifier.testUpdated(t)
	return t
}

// RestoreTest installs a persisted snapshot without notifying.
func (e *Engine) RestoreTest(t ABTest) {
	e.tests.put(t)
}

func (e *Engine) Test(testID string) (ABTest, bool) {
	return e.tests.get(testID)
}

func (e *Engine) Tests() []ABTest {
	return e.tests.list()
}

// AnalyzeTest recomputes both variants and the winner. It can be repeated;
// each run replaces the stored result. Unknown IDs return ErrTestNotFound.
func (e *Engine) AnalyzeTest(testID string) (ABTest, error) {
	defer e.observe("abtest", time.Now())

	t, err := e.tests.update(testID, func(cur ABTest) ABTest {
		a := analyzeVariant(cur.VariantA, e.effectiveness(cur.VariantA.MomentID), e.store.InteractionCount(cur.VariantA.MomentID))
		b := analyzeVariant(cur.VariantB, e.effectiveness(cur.VariantB.MomentID), e.store.InteractionCount(cur.VariantB.MomentID))
		cmp := compareVariants(a, b)

		next := cur
		next.VariantA = a
		next.VariantB = b
		next.Significance = cmp.Significance
		next.ZScore = cmp.Z
		next.PValue = cmp.PValue
		next.Winner = decideWinner(a.Stats.ConversionRate, b.Stats.ConversionRate, cmp.Significance)
		next.State = StateAnalyzed
		next.AnalyzedAt = e.now()
		return next
	})
	if err != nil {
		return ABTest{}, err
	}

	e.log.Debug("ab test analyzed",
		zap.String("test_id", t.ID),
		zap.Float64("significance", t.Significance),
		zap.String("winner", string(t.Winner)),
		zap.Uint64("version", t.Version),
	)
	e.notifier.testUpdated(t)
	return t, nil
}

// CohortAnalysis buckets users active in [start, end] by week or month and
// tracks how many return over the following periods.
func (e *Engine) CohortAnalysis(start, end time.Time, groupBy GroupBy) ([]Cohort, error) {
	defer e.observe("cohorts", time.Now())
	return analyzeCohorts(e.store, e.visits, start, end, groupBy)
}

func (e *Engine) UserJourney(userID, sessionID string) []events.Interaction {
	defer e.observe("journey", time.Now())
	return userJourney(e.store, userID, sessionID)
}

func (e *Engine) PersonalizationEffectiveness(userID string) PersonalizationReport {
	defer e.observe("personalization", time.Now())
	return personalizationEffectiveness(e.store, userID)
}
