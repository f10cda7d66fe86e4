package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	lassoMaxIter = 1000
	lassoTol     = 1e-6
	rankCond     = 1e-12
)

// Linear is an additive linear model y = Intercept + Coef·x.
//
// The intercept is never penalised: inputs are centred before solving and the
// intercept is recovered from the means.
//   - linear: ordinary least squares via SVD (minimum-norm on rank deficiency)
//   - ridge: (XᵀX + αI)β = Xᵀy via Cholesky
//   - lasso: coordinate descent on (1/2n)‖y − Xβ‖² + α‖β‖₁
type Linear struct {
	Variant   Kind      `json:"variant"`
	Alpha     float64   `json:"alpha,omitempty"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// NewLinear creates an ordinary least squares model.
func NewLinear() *Linear { return &Linear{Variant: KindLinear} }

// NewRidge creates an L2-penalised model.
func NewRidge(alpha float64) *Linear { return &Linear{Variant: KindRidge, Alpha: alpha} }

// NewLasso creates an L1-penalised model.
func NewLasso(alpha float64) *Linear { return &Linear{Variant: KindLasso, Alpha: alpha} }

func (m *Linear) Kind() Kind { return m.Variant }

func (m *Linear) Fit(X [][]float64, y []float64) error {
	p, err := checkXY(X, y)
	if err != nil {
		return err
	}
	n := len(X)

	xMean := make([]float64, p)
	for _, row := range X {
		floats.Add(xMean, row)
	}
	floats.Scale(1/float64(n), xMean)
	yMean := stat.Mean(y, nil)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	var coef []float64
	switch m.Variant {
	case KindLinear:
		coef, err = leastSquares(xc, yc)
	case KindRidge:
		coef, err = ridgeSolve(xc, yc, m.Alpha)
	case KindLasso:
		coef = lassoSolve(xc, yc, m.Alpha)
	default:
		err = fmt.Errorf("%w: linear variant %q", ErrUnknown, m.Variant)
	}
	if err != nil {
		return err
	}

	m.Coef = coef
	m.Intercept = yMean - floats.Dot(xMean, coef)
	return nil
}

func (m *Linear) Predict(X [][]float64) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	if err := checkX(X, len(m.Coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.Intercept + floats.Dot(m.Coef, row)
	}
	return out, nil
}

// leastSquares returns the minimum-norm solution of min ‖xβ − y‖.
func leastSquares(x mat.Matrix, y *mat.VecDense) ([]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: svd did not converge", ErrSingular)
	}
	rank := svd.Rank(rankCond)
	if rank == 0 {
		return nil, fmt.Errorf("%w: design matrix has rank 0", ErrSingular)
	}
	var beta mat.Dense
	svd.SolveTo(&beta, y, rank)
	return mat.Col(nil, 0, &beta), nil
}

func ridgeSolve(x *mat.Dense, y *mat.VecDense, alpha float64) ([]float64, error) {
	_, p := x.Dims()

	a := mat.NewSymDense(p, nil)
	a.SymOuterK(1, x.T())
	for j := range p {
		a.SetSym(j, j, a.At(j, j)+alpha)
	}

	var b mat.VecDense
	b.MulVec(x.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, fmt.Errorf("%w: ridge normal equations are not positive definite", ErrSingular)
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return mat.Col(nil, 0, &beta), nil
}

// lassoSolve runs cyclic coordinate descent with soft thresholding.
func lassoSolve(x *mat.Dense, y *mat.VecDense, alpha float64) []float64 {
	n, p := x.Dims()
	nf := float64(n)

	cols := make([][]float64, p)
	norms := make([]float64, p)
	for j := range p {
		cols[j] = mat.Col(nil, j, x)
		norms[j] = floats.Dot(cols[j], cols[j]) / nf
	}

	beta := make([]float64, p)
	resid := mat.Col(nil, 0, y)

	for range lassoMaxIter {
		maxDelta, maxBeta := 0.0, 0.0
		for j := range p {
			if norms[j] == 0 {
				continue
			}
			rho := floats.Dot(cols[j], resid)/nf + norms[j]*beta[j]
			next := softThreshold(rho, alpha) / norms[j]
			if delta := next - beta[j]; delta != 0 {
				floats.AddScaled(resid, -delta, cols[j])
				maxDelta = max(maxDelta, math.Abs(delta))
				beta[j] = next
			}
			maxBeta = max(maxBeta, math.Abs(beta[j]))
		}
		if maxDelta <= lassoTol*max(maxBeta, 1) {
			break
		}
	}
	return beta
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}
