package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/gkobilansky/moment-meter/internal/events"
)

// FunnelDefinition names an ordered list of steps. It is kept for reuse and
// audit; analysis always uses the steps it is given.
type FunnelDefinition struct {
	ID        string    `json:"id" yaml:"id"`
	Steps     []string  `json:"steps" yaml:"steps"`
	DefinedAt time.Time `json:"defined_at" yaml:"-"`
}

type FunnelStep struct {
	Name              string          `json:"name"`
	Index             int             `json:"index"`
	EligibleUsers     int             `json:"eligible_users"`
	ConvertedUsers    int             `json:"converted_users"`
	DropoffUsers      int             `json:"dropoff_users"`
	ConversionRate    float64         `json:"conversion_rate"`
	AverageTimeInStep time.Duration   `json:"average_time_in_step"`
	DropoffReasons    []DropoffReason `json:"dropoff_reasons"`
}

type funnelRegistry struct {
	mu   sync.RWMutex
	defs map[string]FunnelDefinition
}

func newFunnelRegistry() *funnelRegistry {
	return &funnelRegistry{defs: make(map[string]FunnelDefinition)}
}

func (r *funnelRegistry) put(def FunnelDefinition) {
	def.Steps = append([]string(nil), def.Steps...)
	r.mu.Lock()
	r.defs[def.ID] = def
	r.mu.Unlock()
}

func (r *funnelRegistry) get(id string) (FunnelDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

func (r *funnelRegistry) list() []FunnelDefinition {
	r.mu.RLock()
	defs := make([]FunnelDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		defs = append(defs, d)
	}
	r.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// inRange treats a zero bound as open.
func inRange(ts, start, end time.Time) bool {
	if !start.IsZero() && ts.Before(start) {
		return false
	}
	if !end.IsZero() && ts.After(end) {
		return false
	}
	return true
}

// stepTouches maps step name -> user -> timestamps at that step.
type stepTouches map[string]map[string][]time.Time

func collectStepTouches(store *EventStore, steps []string, start, end time.Time) stepTouches {
	touches := make(stepTouches, len(steps))
	for _, name := range steps {
		touches[name] = make(map[string][]time.Time)
	}

	store.EachInteraction(func(_ string, items []events.Interaction) {
		for _, i := range items {
			users, ok := touches[i.Metadata.Step]
			if !ok || !inRange(i.Timestamp, start, end) {
				continue
			}
			users[i.UserID] = append(users[i.UserID], i.Timestamp)
		}
	})

	return touches
}

// analyzeFunnel narrows the population step by step: a step can only
// convert users who converted on the step before it.
func analyzeFunnel(store *EventStore, funnelID string, steps []string, start, end time.Time, h StepHeuristics) []FunnelStep {
	touches := collectStepTouches(store, steps, start, end)
	result := make([]FunnelStep, 0, len(steps))

	var carried map[string]struct{}
	for idx, name := range steps {
		stepUsers := touches[name]

		var eligible map[string]struct{}
		if idx == 0 {
			eligible = make(map[string]struct{}, len(stepUsers))
			for u := range stepUsers {
				eligible[u] = struct{}{}
			}
		} else {
			eligible = carried
		}

		converted := make(map[string]struct{})
		for u := range eligible {
			if _, ok := stepUsers[u]; ok {
				converted[u] = struct{}{}
			}
		}

		ctx := StepContext{
			FunnelID:  funnelID,
			Step:      name,
			Index:     idx,
			Eligible:  setKeys(eligible),
			Converted: setKeys(converted),
			Touches:   stepUsers,
		}

		result = append(result, FunnelStep{
			Name:              name,
			Index:             idx,
			EligibleUsers:     len(eligible),
			ConvertedUsers:    len(converted),
			DropoffUsers:      len(eligible) - len(converted),
			ConversionRate:    percent(len(converted), len(eligible)),
			AverageTimeInStep: h.TimeInStep(ctx),
			DropoffReasons:    h.DropoffReasons(ctx),
		})

		carried = converted
	}

	return result
}
