package engine

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gkobilansky/moment-meter/internal/stats"
)

var ErrTestNotFound = errors.New("ab test not found")

type Winner string

const (
	WinnerA            Winner = "A"
	WinnerB            Winner = "B"
	WinnerInconclusive Winner = "inconclusive"
)

type TestState string

const (
	StateCreated  TestState = "created"
	StateAnalyzed TestState = "analyzed"
)

// DefaultConfidenceLevel is the confidence, in percent, a winner must reach.
const DefaultConfidenceLevel = 95

type Variant struct {
	MomentID   string             `json:"moment_id"`
	Stats      EffectivenessStats `json:"stats"`
	SampleSize int                `json:"sample_size"`
	// ConversionCI is the 95% Wilson interval on conversions over clicks.
	ConversionCI stats.Interval `json:"conversion_ci"`
}

// ABTest is an immutable snapshot. Every analysis produces a new snapshot
// with a higher Version; readers never observe a half-updated test.
type ABTest struct {
	ID              string    `json:"id"`
	VariantA        Variant   `json:"variant_a"`
	VariantB        Variant   `json:"variant_b"`
	TrafficSplit    float64   `json:"traffic_split"` // recorded, not enforced
	Significance    float64   `json:"significance"`
	ConfidenceLevel float64   `json:"confidence_level"`
	ZScore          float64   `json:"z_score"`
	PValue          float64   `json:"p_value"`
	Winner          Winner    `json:"winner"`
	State           TestState `json:"state"`
	Version         uint64    `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	AnalyzedAt      time.Time `json:"analyzed_at,omitempty"`
}

func newABTest(id, momentA, momentB string, split float64, now time.Time) ABTest {
	return ABTest{
		ID:              id,
		VariantA:        Variant{MomentID: momentA, Stats: EffectivenessStats{MomentID: momentA}},
		VariantB:        Variant{MomentID: momentB, Stats: EffectivenessStats{MomentID: momentB}},
		TrafficSplit:    split,
		ConfidenceLevel: DefaultConfidenceLevel,
		Winner:          WinnerInconclusive,
		State:           StateCreated,
		Version:         1,
		CreatedAt:       now,
	}
}

// decideWinner requires A to strictly beat B; ties go to B.
func decideWinner(rateA, rateB, significance float64) Winner {
	if significance < stats.SignificanceThreshold {
		return WinnerInconclusive
	}
	if rateA > rateB {
		return WinnerA
	}
	return WinnerB
}

type testRegistry struct {
	mu    sync.RWMutex
	tests map[string]*atomic.Pointer[ABTest]
}

func newTestRegistry() *testRegistry {
	return &testRegistry{tests: make(map[string]*atomic.Pointer[ABTest])}
}

// put installs t, replacing any existing test with the same ID.
func (r *testRegistry) put(t ABTest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.tests[t.ID]
	if !ok {
		p = &atomic.Pointer[ABTest]{}
		r.tests[t.ID] = p
	}
	p.Store(&t)
}

func (r *testRegistry) ref(id string) *atomic.Pointer[ABTest] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tests[id]
}

func (r *testRegistry) get(id string) (ABTest, bool) {
	p := r.ref(id)
	if p == nil {
		return ABTest{}, false
	}
	return *p.Load(), true
}

func (r *testRegistry) list() []ABTest {
	r.mu.RLock()
	tests := make([]ABTest, 0, len(r.tests))
	for _, p := range r.tests {
		tests = append(tests, *p.Load())
	}
	r.mu.RUnlock()

	sort.Slice(tests, func(i, j int) bool { return tests[i].ID < tests[j].ID })
	return tests
}

// update derives a new snapshot from the current one and installs it with
// compare-and-swap, recomputing if another writer got there first.
func (r *testRegistry) update(id string, next func(ABTest) ABTest) (ABTest, error) {
	p := r.ref(id)
	if p == nil {
		return ABTest{}, ErrTestNotFound
	}

	for {
		cur := p.Load()
		updated := next(*cur)
		updated.Version = cur.Version + 1
		if p.CompareAndSwap(cur, &updated) {
			return updated, nil
		}
	}
}

func analyzeVariant(v Variant, s EffectivenessStats, sampleSize int) Variant {
	return Variant{
		MomentID:     v.MomentID,
		Stats:        s,
		SampleSize:   sampleSize,
		ConversionCI: stats.WilsonInterval(s.TotalConversions, s.TotalClicks, 0.95),
	}
}

func compareVariants(a, b Variant) stats.Comparison {
	return stats.Compare(a.Stats.ConversionRate, a.SampleSize, b.Stats.ConversionRate, b.SampleSize)
}
