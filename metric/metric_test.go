package metric

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thalesfsp/regtune"
)

type constantPredictor struct {
	value float64
	err   error
}

func (c constantPredictor) Predict(x regtune.FeatureMatrix) ([]float64, error) {
	if c.err != nil {
		return nil, c.err
	}

	out := make([]float64, len(x))
	for i := range out {
		out[i] = c.value
	}

	return out, nil
}

func TestPerfectPredictions(t *testing.T) {
	y := []float64{1, 2, 3}

	mse, err := MSE(y, y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mse)

	rmse, err := RMSE([]float64{1, 2, 3}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, rmse)

	r2, err := R2Score(y, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r2)

	mae, err := MAE(y, y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mae)
}

func TestKnownValues(t *testing.T) {
	yTrue := []float64{3, -0.5, 2, 7}
	yPred := []float64{2.5, 0.0, 2, 8}

	mse, err := MSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.375, mse, 1e-12)

	rmse, err := RMSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(0.375), rmse, 1e-12)

	r2, err := R2Score(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.9486081370449679, r2, 1e-12)

	mae, err := MAE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mae, 1e-12)
}

func TestR2CanBeNegative(t *testing.T) {
	r2, err := R2Score([]float64{1, 2, 3}, []float64{3, 2, 1})
	require.NoError(t, err)
	assert.InDelta(t, -3.0, r2, 1e-12)
}

func TestR2DegenerateTarget(t *testing.T) {
	_, err := R2Score([]float64{5, 5, 5}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, regtune.ErrDegenerateTarget)

	// Even a perfect prediction of a constant target is undefined.
	_, err = R2Score([]float64{5, 5, 5}, []float64{5, 5, 5})
	assert.ErrorIs(t, err, regtune.ErrDegenerateTarget)

	// The mean of these is not exactly 0.1 in floating point.
	_, err = R2Score([]float64{0.1, 0.1, 0.1}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, regtune.ErrDegenerateTarget)

	_, err = R2Score([]float64{0.7, 0.7, 0.7, 0.7, 0.7, 0.7, 0.7}, []float64{0, 1, 2, 3, 4, 5, 6})
	assert.ErrorIs(t, err, regtune.ErrDegenerateTarget)

	// A single row is constant by definition.
	_, err = R2Score([]float64{3}, []float64{3})
	assert.ErrorIs(t, err, regtune.ErrDegenerateTarget)
}

func TestEvaluateNearConstantTarget(t *testing.T) {
	report, err := Evaluate(constantPredictor{value: 2}, regtune.FeatureMatrix{{1}, {2}, {3}}, regtune.TargetVector{0.1, 0.1, 0.1})
	require.NoError(t, err)

	assert.True(t, math.IsNaN(report.R2))
}

func TestDimensionMismatch(t *testing.T) {
	for name, fn := range map[string]func(a, b []float64) (float64, error){
		"mse":  MSE,
		"rmse": RMSE,
		"r2":   R2Score,
		"mae":  MAE,
	} {
		_, err := fn([]float64{1, 2}, []float64{1, 2, 3})
		assert.ErrorIs(t, err, regtune.ErrDimensionMismatch, name)

		_, err = fn(nil, nil)
		assert.ErrorIs(t, err, regtune.ErrEmptyInput, name)
	}
}

func TestEvaluate(t *testing.T) {
	x := regtune.FeatureMatrix{{1}, {2}, {3}, {4}}
	y := regtune.TargetVector{1, 2, 3, 4}

	report, err := Evaluate(constantPredictor{value: 2.5}, x, y)
	require.NoError(t, err)

	assert.InDelta(t, 1.25, report.MSE, 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), report.RMSE, 1e-12)
	assert.InDelta(t, 0.0, report.R2, 1e-12)
	assert.InDelta(t, 1.0, report.MAE, 1e-12)
}

func TestEvaluateConstantTarget(t *testing.T) {
	report, err := Evaluate(constantPredictor{value: 1}, regtune.FeatureMatrix{{1}, {2}}, regtune.TargetVector{3, 3})
	require.NoError(t, err)

	assert.True(t, math.IsNaN(report.R2))
	assert.Equal(t, 4.0, report.MSE)
}

func TestEvaluatePredictorError(t *testing.T) {
	boom := errors.New("boom")

	_, err := Evaluate(constantPredictor{err: boom}, regtune.FeatureMatrix{{1}}, regtune.TargetVector{1})
	assert.ErrorIs(t, err, boom)
}
