package engine

import (
	"math"
	"sort"
	"time"
)

// StepContext is what a StepHeuristics implementation gets to see for one
// funnel step.
type StepContext struct {
	FunnelID  string
	Step      string
	Index     int
	Eligible  []string
	Converted []string
	// Touches holds each user's in-range timestamps at this step.
	Touches map[string][]time.Time
}

// Dropoffs is the number of eligible users that did not convert.
func (c StepContext) Dropoffs() int {
	return len(c.Eligible) - len(c.Converted)
}

type DropoffReason struct {
	Reason string  `json:"reason"`
	Share  float64 `json:"share"` // percent of dropoffs
	Users  int     `json:"users"`
}

// StepHeuristics estimates the parts of a funnel step that the event stream
// carries no direct signal for. Results are approximate by nature.
type StepHeuristics interface {
	TimeInStep(ctx StepContext) time.Duration
	DropoffReasons(ctx StepContext) []DropoffReason
}

type ReasonShare struct {
	Reason string
	Share  float64 // fraction, shares should sum to 1
}

var DefaultDropoffShares = []ReasonShare{
	{Reason: "friction", Share: 0.40},
	{Reason: "distraction", Share: 0.35},
	{Reason: "technical", Share: 0.25},
}

// FixedProportions is the default StepHeuristics. Dropoffs are split by
// fixed shares; time in step is the mean span between a converted user's
// first and last touch at the step.
type FixedProportions struct {
	Shares []ReasonShare
}

func (f FixedProportions) shares() []ReasonShare {
	if len(f.Shares) == 0 {
		return DefaultDropoffShares
	}
	return f.Shares
}

func (f FixedProportions) TimeInStep(ctx StepContext) time.Duration {
	if len(ctx.Converted) == 0 {
		return 0
	}

	var total time.Duration
	for _, u := range ctx.Converted {
		total += span(ctx.Touches[u])
	}
	return total / time.Duration(len(ctx.Converted))
}

// DropoffReasons splits dropoffs by largest remainder, so the user counts add
// up to the dropoffs whenever the shares sum to 1.
func (f FixedProportions) DropoffReasons(ctx StepContext) []DropoffReason {
	dropoffs := ctx.Dropoffs()
	shares := f.shares()

	reasons := make([]DropoffReason, 0, len(shares))
	fractions := make([]float64, 0, len(shares))
	assigned := 0
	for _, s := range shares {
		exact := s.Share * float64(dropoffs)
		users := int(math.Floor(exact))
		assigned += users
		fractions = append(fractions, exact-float64(users))
		reasons = append(reasons, DropoffReason{
			Reason: s.Reason,
			Share:  s.Share * 100,
			Users:  users,
		})
	}

	order := make([]int, len(reasons))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fractions[order[a]] > fractions[order[b]]
	})
	for _, i := range order {
		if assigned >= dropoffs {
			break
		}
		reasons[i].Users++
		assigned++
	}
	return reasons
}

func span(ts []time.Time) time.Duration {
	if len(ts) < 2 {
		return 0
	}
	first, last := ts[0], ts[0]
	for _, t := range ts[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	return last.Sub(first)
}
