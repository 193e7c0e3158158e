// Package stats certifies chaos modes statistically: it runs a mode many times
// over a fixed conversation and chi-square tests the observed outcomes against
// the distribution the parameters promise.
package stats

import (
	"fmt"
	"math"
)

// Significance is the level every check is performed at.
const Significance = 0.05

// criticalValues holds the 0.95 quantile of the chi-square distribution for
// 1..30 degrees of freedom.
var criticalValues = [...]float64{
	3.841, 5.991, 7.815, 9.488, 11.070, 12.592, 14.067, 15.507, 16.919, 18.307,
	19.675, 21.026, 22.362, 23.685, 24.996, 26.296, 27.587, 28.869, 30.144, 31.410,
	32.671, 33.924, 35.172, 36.415, 37.652, 38.885, 40.113, 41.337, 42.557, 43.773,
}

// z95 is the 0.95 quantile of the standard normal distribution.
const z95 = 1.6448536269514722

// CriticalValue returns the chi-square critical value at Significance for df
// degrees of freedom. Beyond the table it uses the Wilson-Hilferty
// approximation, which is within 0.01 of the exact quantile there.
func CriticalValue(df int) (float64, error) {
	if df < 1 {
		return 0, fmt.Errorf("stats: degrees of freedom must be positive, got %d", df)
	}
	if df <= len(criticalValues) {
		return criticalValues[df-1], nil
	}
	k := float64(df)
	h := 2 / (9 * k)
	return k * math.Pow(1-h+z95*math.Sqrt(h), 3), nil
}

// ChiSquare computes sum((actual-expected)^2/expected) over the categories
// with a positive expectation and returns it with the degrees of freedom left.
// An observation in a category expected to be empty makes the statistic +Inf.
func ChiSquare(expected []float64, actual []int) (float64, int, error) {
	if len(expected) != len(actual) {
		return 0, 0, fmt.Errorf("stats: %d expectations for %d observations", len(expected), len(actual))
	}

	chi := 0.0
	used := 0
	for i, e := range expected {
		if e < 0 || math.IsNaN(e) {
			return 0, 0, fmt.Errorf("stats: invalid expectation %v for category %d", e, i)
		}
		if e == 0 {
			if actual[i] > 0 {
				chi = math.Inf(1)
			}
			continue
		}
		d := float64(actual[i]) - e
		chi += d * d / e
		used++
	}

	df := used - 1
	if df < 0 {
		df = 0
	}
	return chi, df, nil
}
