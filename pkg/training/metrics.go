package training

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RMSE returns the root mean squared error of pred against actual.
func RMSE(actual, pred []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	var s float64
	for i := range actual {
		d := actual[i] - pred[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(actual)))
}

// R2 returns the coefficient of determination of pred against actual.
// When actual is constant the ratio is undefined; R2 then returns 1 for an
// exact prediction and 0 otherwise, so scores stay finite.
func R2(actual, pred []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	if !constant(actual) {
		return stat.RSquaredFrom(pred, actual, nil)
	}
	for i := range actual {
		if actual[i] != pred[i] {
			return 0
		}
	}
	return 1
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}
