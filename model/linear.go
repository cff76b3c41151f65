package model

import (
	"fmt"
	"math"

	"github.com/thalesfsp/regtune"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// machineEpsilon scales the singular value cutoff of the least squares
// solve.
const machineEpsilon = 2.220446049250313e-16

// Linear is the ordinary least squares strategy. It has no tunable
// hyperparameters.
type Linear struct{}

// LinearModel is a fitted y = Intercept + Coef·x.
type LinearModel struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
}

// NewLinearRegression returns the least squares strategy.
func NewLinearRegression() *Linear {
	return &Linear{}
}

// Name implements Strategy.
func (*Linear) Name() string { return LinearRegressionName }

// Family implements Strategy.
func (*Linear) Family() Family { return LinearRegression }

// SearchSpace implements Strategy. It is empty.
func (*Linear) SearchSpace() regtune.SearchSpace { return regtune.SearchSpace{} }

// Defaults implements Strategy. It is empty.
func (*Linear) Defaults() regtune.Params { return regtune.Params{} }

// Train fits the coefficients on centered data, then recovers the
// intercept from the means. Collinear columns get the minimum-norm solution.
func (l *Linear) Train(x regtune.FeatureMatrix, y regtune.TargetVector, params regtune.Params) (Artifact, error) {
	if _, err := resolve(l, params); err != nil {
		return nil, err
	}

	if err := checkInput(l.Name(), x, y); err != nil {
		return nil, err
	}

	n, p := x.Rows(), x.Cols()

	xMean := make([]float64, p)
	for j := range xMean {
		xMean[j] = stat.Mean(x.Column(j), nil)
	}

	yMean := stat.Mean(y, nil)

	a := mat.NewDense(n, p, nil)
	b := mat.NewVecDense(n, nil)

	for i, row := range x {
		for j, v := range row {
			a.Set(i, j, v-xMean[j])
		}

		b.SetVec(i, y[i]-yMean)
	}

	coef := make([]float64, p)

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, regtune.NewError("train", l.Name(), regtune.TrainingFailure(fmt.Errorf("singular value decomposition did not converge")))
	}

	rcond := float64(max(n, p)) * machineEpsilon
	if rank := svd.Rank(rcond); rank > 0 {
		beta := mat.NewVecDense(p, nil)
		svd.SolveVecTo(beta, b, rank)

		for j := range coef {
			coef[j] = beta.AtVec(j)
		}
	}

	model := &LinearModel{Coef: coef, Intercept: yMean}
	for j, c := range coef {
		model.Intercept -= c * xMean[j]
	}

	if !finite(model.Intercept) || !finiteAll(coef) {
		return nil, regtune.NewError("train", l.Name(), regtune.TrainingFailure(regtune.ErrNonFiniteValue))
	}

	return model, nil
}

// Optimize implements Strategy. With nothing to tune every trial yields the
// same score.
func (l *Linear) Optimize(trial *regtune.Trial, xTrain regtune.FeatureMatrix, yTrain regtune.TargetVector, xVal regtune.FeatureMatrix, yVal regtune.TargetVector) (float64, error) {
	return score(l, trial.Params(), xTrain, yTrain, xVal, yVal)
}

// Predict implements Artifact.
func (m *LinearModel) Predict(x regtune.FeatureMatrix) ([]float64, error) {
	if err := checkWidth(x, len(m.Coef)); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i, row := range x {
		v := m.Intercept
		for j, c := range m.Coef {
			v += c * row[j]
		}

		out[i] = v
	}

	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteAll(s []float64) bool {
	for _, v := range s {
		if !finite(v) {
			return false
		}
	}

	return true
}
