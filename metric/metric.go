// Package metric scores regression predictions against true targets.
//
// Every function takes the true values first and the predictions second,
// requires both sequences to have the same non-zero length, and reports
// failures with the sentinel errors of the regtune package.
package metric

import (
	"fmt"
	"math"

	"github.com/thalesfsp/regtune"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

//////
// Const, vars, types.
//////

// Predictor is anything that maps feature rows to predictions.
type Predictor interface {
	Predict(x regtune.FeatureMatrix) ([]float64, error)
}

// Report holds the scores of one evaluation.
type Report struct {
	MSE  float64 `json:"mse" yaml:"mse"`
	RMSE float64 `json:"rmse" yaml:"rmse"`
	R2   float64 `json:"r2" yaml:"r2"`
	MAE  float64 `json:"mae" yaml:"mae"`
}

//////
// Exported functionalities.
//////

// MSE returns the mean of the squared differences between yTrue and yPred.
func MSE(yTrue, yPred []float64) (float64, error) {
	if err := check(yTrue, yPred); err != nil {
		return 0, err
	}

	return sumSquaredResiduals(yTrue, yPred) / float64(len(yTrue)), nil
}

// RMSE returns the square root of MSE.
func RMSE(yTrue, yPred []float64) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}

	return math.Sqrt(mse), nil
}

// R2Score returns the coefficient of determination,
// 1 - SS_res / SS_tot. It is 1 for a perfect fit and can be negative for a
// fit worse than predicting the mean.
//
// Returns regtune.ErrDegenerateTarget when every value of yTrue is the same,
// since SS_tot is then zero and the ratio is undefined.
func R2Score(yTrue, yPred []float64) (float64, error) {
	if err := check(yTrue, yPred); err != nil {
		return 0, err
	}

	// SS_tot of a constant target is not exactly zero when its mean is
	// inexact, so compare the values themselves.
	if floats.Min(yTrue) == floats.Max(yTrue) {
		return 0, regtune.ErrDegenerateTarget
	}

	centered := make([]float64, len(yTrue))
	copy(centered, yTrue)
	floats.AddConst(-stat.Mean(yTrue, nil), centered)

	ssTot := floats.Dot(centered, centered)

	return 1 - sumSquaredResiduals(yTrue, yPred)/ssTot, nil
}

// MAE returns the mean absolute difference between yTrue and yPred.
func MAE(yTrue, yPred []float64) (float64, error) {
	if err := check(yTrue, yPred); err != nil {
		return 0, err
	}

	residuals := make([]float64, len(yTrue))
	floats.SubTo(residuals, yTrue, yPred)

	return floats.Norm(residuals, 1) / float64(len(yTrue)), nil
}

// Evaluate runs predictor over x and scores the predictions against y.
//
// A degenerate (constant) y is not an error here: R2 is reported as NaN and
// the other scores are still computed.
func Evaluate(predictor Predictor, x regtune.FeatureMatrix, y regtune.TargetVector) (Report, error) {
	pred, err := predictor.Predict(x)
	if err != nil {
		return Report{}, fmt.Errorf("predict: %w", err)
	}

	mse, err := MSE(y, pred)
	if err != nil {
		return Report{}, err
	}

	mae, err := MAE(y, pred)
	if err != nil {
		return Report{}, err
	}

	r2, err := R2Score(y, pred)
	if err != nil {
		r2 = math.NaN()
	}

	return Report{
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		R2:   r2,
		MAE:  mae,
	}, nil
}

//////
// Helper functions.
//////

func check(yTrue, yPred []float64) error {
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("%w: %d true values, %d predictions", regtune.ErrDimensionMismatch, len(yTrue), len(yPred))
	}

	if len(yTrue) == 0 {
		return regtune.ErrEmptyInput
	}

	return nil
}

func sumSquaredResiduals(yTrue, yPred []float64) float64 {
	residuals := make([]float64, len(yTrue))
	floats.SubTo(residuals, yTrue, yPred)

	return floats.Dot(residuals, residuals)
}
