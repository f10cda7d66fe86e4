package models

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Seasonal periods in hours.
const (
	dailyPeriod  = 24.0
	weeklyPeriod = 24.0 * 7
	yearlyPeriod = 24.0 * 365.25
)

// Decomposition models a series as a linear trend plus daily, weekly and
// yearly Fourier seasonality:
//
//	y(t) = b0 + b1·τ + Σ_p Σ_{k=1..K_p} (a_pk sin(2πkt/P_p) + c_pk cos(2πkt/P_p))
//
// where t is hours since Origin and τ = t / Span scales the trend to [0, 1]
// over the training range. Coefficients are fitted jointly by least squares.
type Decomposition struct {
	Daily  int       `json:"daily"`
	Weekly int       `json:"weekly"`
	Yearly int       `json:"yearly"`
	Origin time.Time `json:"origin"`
	Span   float64   `json:"span"`
	Coef   []float64 `json:"coef"`
}

// NewDecomposition creates an unfitted model with the given Fourier orders.
func NewDecomposition(daily, weekly, yearly int) *Decomposition {
	return &Decomposition{Daily: daily, Weekly: weekly, Yearly: yearly}
}

func (m *Decomposition) Kind() Kind { return KindDecomposition }

func (m *Decomposition) FitSeries(ts []time.Time, y []float64) error {
	if len(ts) == 0 {
		return fmt.Errorf("%w: empty series", ErrShape)
	}
	if len(ts) != len(y) {
		return fmt.Errorf("%w: %d timestamps, %d values", ErrShape, len(ts), len(y))
	}
	p := m.width()
	if len(ts) < p {
		return fmt.Errorf("%w: %d points for %d coefficients", ErrShape, len(ts), p)
	}

	origin := ts[0]
	span := ts[len(ts)-1].Sub(origin).Hours()
	if span <= 0 {
		span = 1
	}
	m.Origin, m.Span = origin, span

	x := mat.NewDense(len(ts), p, nil)
	row := make([]float64, p)
	for i, t := range ts {
		m.design(t, row)
		x.SetRow(i, row)
	}
	coef, err := leastSquares(x, mat.NewVecDense(len(y), y))
	if err != nil {
		return err
	}
	m.Coef = coef
	return nil
}

func (m *Decomposition) PredictAt(ts []time.Time) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	row := make([]float64, m.width())
	out := make([]float64, len(ts))
	for i, t := range ts {
		m.design(t, row)
		out[i] = floats.Dot(m.Coef, row)
	}
	return out, nil
}

func (m *Decomposition) width() int {
	return 2 + 2*(m.Daily+m.Weekly+m.Yearly)
}

// design fills row with the regressors for t.
func (m *Decomposition) design(t time.Time, row []float64) {
	h := t.Sub(m.Origin).Hours()
	row[0] = 1
	row[1] = h / m.Span
	j := 2
	for _, s := range []struct {
		order  int
		period float64
	}{{m.Daily, dailyPeriod}, {m.Weekly, weeklyPeriod}, {m.Yearly, yearlyPeriod}} {
		for k := 1; k <= s.order; k++ {
			w := 2 * math.Pi * float64(k) * h / s.period
			row[j] = math.Sin(w)
			row[j+1] = math.Cos(w)
			j += 2
		}
	}
}
