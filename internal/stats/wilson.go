package stats

import "math"

// Interval is a confidence interval on a proportion, in percent.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// WilsonInterval calculates the Wilson score interval for a binomial
// proportion. Successes above trials are clamped, so the interval is always
// within [0, 100].
func WilsonInterval(successes, trials int, confidence float64) Interval {
	if trials <= 0 {
		return Interval{}
	}
	if successes > trials {
		successes = trials
	}

	z := ZScore(confidence)
	p := float64(successes) / float64(trials)
	n := float64(trials)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	return Interval{
		Lower: math.Max(0, center-spread) * 100,
		Upper: math.Min(1, center+spread) * 100,
	}
}

// ZScore returns the two-sided critical value for a confidence level.
//   - 0.90 -> 1.645
//   - 0.95 -> 1.96
//   - 0.99 -> 2.576
func ZScore(confidence float64) float64 {
	switch confidence {
	case 0.99:
		return 2.576
	case 0.95:
		return 1.96
	case 0.90:
		return 1.645
	}
	return inverseNormalCDF((1 + confidence) / 2)
}
