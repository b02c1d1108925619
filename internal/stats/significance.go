package stats

import "math"

// SignificanceThreshold is the score at which a difference is reported as significant.
const SignificanceThreshold = 0.95

const (
	criticalZ       = 1.96
	significanceZ   = 2.58
	maxSignificance = 0.99
)

// Comparison is the result of comparing two conversion rates.
type Comparison struct {
	Z            float64
	Significance float64 // 0-0.99
	PValue       float64 // two-tailed
	Significant  bool
}

// Compare runs a two-proportion z-test on rates expressed as percentages,
// each weighted by its sample size. When the standard error is zero or
// undefined the comparison carries no evidence and significance is 0.
func Compare(rateA float64, sizeA int, rateB float64, sizeB int) Comparison {
	z, ok := ZStatistic(rateA, sizeA, rateB, sizeB)
	if !ok {
		return Comparison{PValue: 1}
	}

	sig := Significance(z)
	return Comparison{
		Z:            z,
		Significance: sig,
		PValue:       TwoTailedPValue(z),
		Significant:  sig >= SignificanceThreshold,
	}
}

// ZStatistic returns |p1-p2| over the pooled standard error. ok is false
// when either sample is empty or the standard error is zero.
func ZStatistic(rateA float64, sizeA int, rateB float64, sizeB int) (z float64, ok bool) {
	if sizeA <= 0 || sizeB <= 0 {
		return 0, false
	}

	p1 := rateA / 100
	p2 := rateB / 100
	n1 := float64(sizeA)
	n2 := float64(sizeB)

	// Pooled proportion under the null hypothesis
	pooled := (p1*n1 + p2*n2) / (n1 + n2)

	variance := pooled * (1 - pooled) * (1/n1 + 1/n2)
	if variance <= 0 || math.IsNaN(variance) {
		return 0, false
	}

	return math.Abs(p1-p2) / math.Sqrt(variance), true
}

// Significance maps a z statistic linearly onto a confidence score: z=1.96
// maps to 0.95, and the result is clamped to [0, 0.99].
func Significance(z float64) float64 {
	sig := (z-criticalZ)/significanceZ + 0.95
	return math.Max(0, math.Min(maxSignificance, sig))
}

// TwoTailedPValue returns P(|Z| >= z) under the standard normal.
func TwoTailedPValue(z float64) float64 {
	return 2 * (1 - normalCDF(math.Abs(z)))
}
