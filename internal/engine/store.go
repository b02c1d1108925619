package engine

import (
	"sort"
	"sync"

	"github.com/gkobilansky/moment-meter/internal/events"
)

// recordLog is an append-only list. Snapshots share the backing array but
// are clipped to their length, so later appends never show through.
type recordLog[T any] struct {
	mu    sync.RWMutex
	items []T
}

func (l *recordLog[T]) append(v T) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

func (l *recordLog[T]) snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items[:len(l.items):len(l.items)]
}

func (l *recordLog[T]) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// keyedLogs maps a key to its own recordLog. The outer lock is only held
// to find or create a log, so appends to different keys do not contend.
type keyedLogs[T any] struct {
	mu   sync.RWMutex
	logs map[string]*recordLog[T]
}

func newKeyedLogs[T any]() *keyedLogs[T] {
	return &keyedLogs[T]{logs: make(map[string]*recordLog[T])}
}

func (k *keyedLogs[T]) get(key string) *recordLog[T] {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.logs[key]
}

func (k *keyedLogs[T]) getOrCreate(key string) *recordLog[T] {
	if l := k.get(key); l != nil {
		return l
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.logs[key]
	if !ok {
		l = &recordLog[T]{}
		k.logs[key] = l
	}
	return l
}

func (k *keyedLogs[T]) snapshot(key string) []T {
	l := k.get(key)
	if l == nil {
		return nil
	}
	return l.snapshot()
}

func (k *keyedLogs[T]) keys() []string {
	k.mu.RLock()
	keys := make([]string, 0, len(k.logs))
	for key := range k.logs {
		keys = append(keys, key)
	}
	k.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// each calls fn with a snapshot of every log, in key order.
func (k *keyedLogs[T]) each(fn func(key string, items []T)) {
	for _, key := range k.keys() {
		fn(key, k.snapshot(key))
	}
}

// EventStore holds interactions and outcomes keyed by moment.
type EventStore struct {
	interactions *keyedLogs[events.Interaction]
	outcomes     *keyedLogs[events.Outcome]
}

func NewEventStore() *EventStore {
	return &EventStore{
		interactions: newKeyedLogs[events.Interaction](),
		outcomes:     newKeyedLogs[events.Outcome](),
	}
}

func (s *EventStore) AppendInteraction(i events.Interaction) {
	s.interactions.getOrCreate(i.MomentID).append(i)
}

func (s *EventStore) AppendOutcome(o events.Outcome) {
	s.outcomes.getOrCreate(o.MomentID).append(o)
}

// Interactions returns the moment's interactions in insertion order.
func (s *EventStore) Interactions(momentID string) []events.Interaction {
	return s.interactions.snapshot(momentID)
}

// Outcomes returns the moment's outcomes in insertion order.
func (s *EventStore) Outcomes(momentID string) []events.Outcome {
	return s.outcomes.snapshot(momentID)
}

// InteractionCount returns how many interactions the moment has.
func (s *EventStore) InteractionCount(momentID string) int {
	l := s.interactions.get(momentID)
	if l == nil {
		return 0
	}
	return l.len()
}

// Moments lists every moment with at least one interaction or outcome.
func (s *EventStore) Moments() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range append(s.interactions.keys(), s.outcomes.keys()...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// EachInteraction visits every moment's interaction snapshot.
func (s *EventStore) EachInteraction(fn func(momentID string, items []events.Interaction)) {
	s.interactions.each(fn)
}

// EachOutcome visits every moment's outcome snapshot.
func (s *EventStore) EachOutcome(fn func(momentID string, items []events.Outcome)) {
	s.outcomes.each(fn)
}
