package engine_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkobilansky/moment-meter/internal/engine"
)

var checkoutSteps = []string{"landing", "cart", "payment"}

func seedCheckout(e *engine.Engine) {
	// u1 finishes, u2 stops at cart, u3 only lands, u4 skips landing
	for _, i := range []struct {
		user, step string
		day        int
	}{
		{"u1", "landing", 0}, {"u1", "cart", 0}, {"u1", "payment", 1},
		{"u2", "landing", 0}, {"u2", "cart", 1},
		{"u3", "landing", 2},
		{"u4", "cart", 0}, {"u4", "payment", 0},
	} {
		e.RecordInteraction(stepInteraction(i.user, i.step, at(i.day)))
	}
}

func TestAnalyzeFunnel_NarrowsStepByStep(t *testing.T) {
	e := engine.New()
	seedCheckout(e)

	steps := e.AnalyzeFunnel("checkout", checkoutSteps, at(0), at(10))
	require.Len(t, steps, 3)

	assert.Equal(t, 3, steps[0].EligibleUsers)
	assert.Equal(t, 3, steps[0].ConvertedUsers)
	assert.Equal(t, 100.0, steps[0].ConversionRate)

	assert.Equal(t, 3, steps[1].EligibleUsers)
	assert.Equal(t, 2, steps[1].ConvertedUsers)
	assert.Equal(t, 1, steps[1].DropoffUsers)
	assert.InDelta(t, 66.666, steps[1].ConversionRate, 0.01)

	// u4 reached payment but never landed, so it is not eligible
	assert.Equal(t, 2, steps[2].EligibleUsers)
	assert.Equal(t, 1, steps[2].ConvertedUsers)
	assert.Equal(t, 50.0, steps[2].ConversionRate)
}

func TestAnalyzeFunnel_EligibleNeverExceedsPreviousConverted(t *testing.T) {
	e := engine.New()
	seedCheckout(e)

	steps := e.AnalyzeFunnel("checkout", []string{"cart", "landing", "payment", "cart"}, time.Time{}, time.Time{})

	for k := 1; k < len(steps); k++ {
		assert.LessOrEqual(t, steps[k].EligibleUsers, steps[k-1].ConvertedUsers, "step %d", k)
	}
}

func TestAnalyzeFunnel_RespectsDateRange(t *testing.T) {
	e := engine.New()
	seedCheckout(e)

	// Day 1 onwards only: landing has just u3
	steps := e.AnalyzeFunnel("checkout", checkoutSteps, at(1), at(10))

	assert.Equal(t, 1, steps[0].EligibleUsers)
	assert.Equal(t, 0, steps[1].ConvertedUsers)
	assert.Equal(t, 0, steps[2].EligibleUsers)
	assert.Zero(t, steps[2].ConversionRate)
}

func TestAnalyzeFunnel_EmptyStore(t *testing.T) {
	steps := engine.New().AnalyzeFunnel("checkout", checkoutSteps, at(0), at(1))

	require.Len(t, steps, 3)
	for _, s := range steps {
		assert.Zero(t, s.EligibleUsers)
		assert.Zero(t, s.ConversionRate)
	}
}

func TestAnalyzeFunnel_KeepsDefinition(t *testing.T) {
	e := engine.New()
	e.AnalyzeFunnel("checkout", checkoutSteps, at(0), at(1))

	def, ok := e.FunnelDefinition("checkout")

	require.True(t, ok)
	assert.Equal(t, checkoutSteps, def.Steps)
	assert.Len(t, e.Funnels(), 1)
}

func TestAnalyzeFunnel_DefaultHeuristics(t *testing.T) {
	e := engine.New()
	seedCheckout(e)
	// u1 comes back to the cart a day later
	e.RecordInteraction(stepInteraction("u1", "cart", at(1)))

	steps := e.AnalyzeFunnel("checkout", checkoutSteps, at(0), at(10))

	// Converted at cart: u1 spent a day, u2 a single touch
	assert.Equal(t, 12*time.Hour, steps[1].AverageTimeInStep)

	require.Len(t, steps[1].DropoffReasons, len(engine.DefaultDropoffShares))
	total := 0.0
	for _, r := range steps[1].DropoffReasons {
		total += r.Share
	}
	assert.InDelta(t, 100.0, total, 1e-9)
}

type fixedHeuristics struct{}

func (fixedHeuristics) TimeInStep(engine.StepContext) time.Duration { return time.Minute }

func (fixedHeuristics) DropoffReasons(ctx engine.StepContext) []engine.DropoffReason {
	return []engine.DropoffReason{{Reason: "unknown", Share: 100, Users: ctx.Dropoffs()}}
}

func TestAnalyzeFunnel_PluggableHeuristics(t *testing.T) {
	e := engine.New(engine.WithStepHeuristics(fixedHeuristics{}))
	seedCheckout(e)

	steps := e.AnalyzeFunnel("checkout", checkoutSteps, at(0), at(10))

	assert.Equal(t, time.Minute, steps[1].AverageTimeInStep)
	assert.Equal(t, []engine.DropoffReason{{Reason: "unknown", Share: 100, Users: 1}}, steps[1].DropoffReasons)
	// Shape is unchanged by the heuristics
	assert.Equal(t, 2, steps[1].ConvertedUsers)
}

func TestFixedProportions_UsersAddUpToDropoffs(t *testing.T) {
	h := engine.FixedProportions{}

	for _, dropoffs := range []int{1, 2, 3, 7, 10, 99} {
		eligible := make([]string, dropoffs)
		for i := range eligible {
			eligible[i] = fmt.Sprintf("u%d", i)
		}

		reasons := h.DropoffReasons(engine.StepContext{Eligible: eligible})

		total := 0
		for _, r := range reasons {
			total += r.Users
		}
		assert.Equal(t, dropoffs, total, "dropoffs=%d", dropoffs)
	}

	one := h.DropoffReasons(engine.StepContext{Eligible: []string{"u1"}})
	assert.Equal(t, 1, one[0].Users, "a single dropoff goes to the largest share")
}
