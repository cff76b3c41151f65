// Package model defines the Strategy capability shared by every regression
// model family and implements the four families: ordinary least squares,
// random forest, histogram gradient boosting (LightGBM style) and exact
// gradient boosting (XGBoost style).
//
// A Strategy trains an Artifact from a feature matrix, a target vector and a
// set of hyperparameters, and scores one search trial by training on a
// training pair and computing R² on a validation pair.
package model

import (
	"fmt"
	"strings"

	"github.com/thalesfsp/regtune"
	"github.com/thalesfsp/regtune/metric"
)

//////
// Const, vars, types.
//////

// Family enumerates the supported model families.
type Family int

const (
	// LinearRegression is ordinary least squares with an intercept.
	LinearRegression Family = iota

	// RandomForest averages bootstrapped regression trees.
	RandomForest

	// LightGBM is leaf-wise gradient boosting with histogram splits.
	LightGBM

	// XGBoost is depth-wise gradient boosting with exact splits and L2 leaf
	// regularization.
	XGBoost
)

// Cache identifiers. They are persisted, so they must never change.
const (
	LinearRegressionName = "LinearRegressionModel"
	RandomForestName     = "randomforest"
	LightGBMName         = "lightgbm"
	XGBoostName          = "xgboost"
)

// Artifact is a trained model.
type Artifact interface {
	// Predict returns one prediction per row of x. The column count must
	// match the training matrix.
	Predict(x regtune.FeatureMatrix) ([]float64, error)
}

// Strategy is the capability every model family implements.
type Strategy interface {
	// Name is the stable identifier used as the cache key.
	Name() string

	// Family returns the enumeration value.
	Family() Family

	// SearchSpace declares the tunable hyperparameters. Empty for families
	// with nothing to tune.
	SearchSpace() regtune.SearchSpace

	// Defaults returns the hyperparameters used for keys absent from the
	// set passed to Train.
	Defaults() regtune.Params

	// Train fits an Artifact. Keys outside the family's recognized set fail
	// with ErrTrainingFailure wrapping ErrUnknownParameter.
	Train(x regtune.FeatureMatrix, y regtune.TargetVector, params regtune.Params) (Artifact, error)

	// Optimize trains with the trial's proposed hyperparameters on the
	// training pair and returns R² on the validation pair.
	Optimize(trial *regtune.Trial, xTrain regtune.FeatureMatrix, yTrain regtune.TargetVector, xVal regtune.FeatureMatrix, yVal regtune.TargetVector) (float64, error)
}

var families = []Family{LinearRegression, RandomForest, LightGBM, XGBoost}

// aliases maps every accepted spelling, lower-cased, to its family.
var aliases = map[string]Family{
	"linearregressionmodel": LinearRegression,
	"linearregression":      LinearRegression,
	"linear":                LinearRegression,
	"ols":                   LinearRegression,
	"randomforest":          RandomForest,
	"randomforestmodel":     RandomForest,
	"random_forest":         RandomForest,
	"rf":                    RandomForest,
	"lightgbm":              LightGBM,
	"lightgbmmodel":         LightGBM,
	"lgbm":                  LightGBM,
	"xgboost":               XGBoost,
	"xgboostmodel":          XGBoost,
	"xgb":                   XGBoost,
}

//////
// Methods.
//////

// String returns the cache identifier of the family.
func (f Family) String() string {
	switch f {
	case LinearRegression:
		return LinearRegressionName
	case RandomForest:
		return RandomForestName
	case LightGBM:
		return LightGBMName
	case XGBoost:
		return XGBoostName
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

//////
// Factory.
//////

// ParseFamily resolves a family from its cache identifier or from one of the
// historical model names, e.g. "RandomForestModel". Matching ignores case.
func ParseFamily(name string) (Family, error) {
	f, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", regtune.ErrUnknownModel, name)
	}

	return f, nil
}

// New returns the strategy of family f.
func New(f Family) (Strategy, error) {
	switch f {
	case LinearRegression:
		return NewLinearRegression(), nil
	case RandomForest:
		return NewRandomForest(), nil
	case LightGBM:
		return NewLightGBM(), nil
	case XGBoost:
		return NewXGBoost(), nil
	default:
		return nil, fmt.Errorf("%w: %v", regtune.ErrUnknownModel, f)
	}
}

// Lookup resolves name with ParseFamily and builds its strategy.
func Lookup(name string) (Strategy, error) {
	f, err := ParseFamily(name)
	if err != nil {
		return nil, err
	}

	return New(f)
}

// Families lists every supported family.
func Families() []Family {
	out := make([]Family, len(families))
	copy(out, families)

	return out
}

//////
// Helper functions.
//////

// resolve merges params over defaults after rejecting unrecognized keys.
// The recognized set is the search space plus extra.
func resolve(s Strategy, params regtune.Params, extra ...string) (regtune.Params, error) {
	space := s.SearchSpace()

	for _, key := range params.Keys() {
		if _, ok := space.Lookup(key); ok {
			continue
		}

		if contains(extra, key) {
			continue
		}

		return nil, regtune.NewError("train", s.Name(), regtune.TrainingFailure(
			fmt.Errorf("%w: %q", regtune.ErrUnknownParameter, key),
		))
	}

	return s.Defaults().Merge(params), nil
}

// checkInput validates a training pair.
func checkInput(family string, x regtune.FeatureMatrix, y regtune.TargetVector) error {
	if err := regtune.CheckPair(x, y); err != nil {
		return regtune.NewError("train", family, regtune.TrainingFailure(err))
	}

	return nil
}

// checkWidth validates a prediction matrix against the training width.
func checkWidth(x regtune.FeatureMatrix, width int) error {
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d columns, model expects %d", regtune.ErrDimensionMismatch, i, len(row), width)
		}
	}

	return nil
}

// invalid reports a hyperparameter value outside its legal domain.
func invalid(family, format string, args ...any) error {
	return regtune.NewError("train", family, regtune.TrainingFailure(
		fmt.Errorf("%w: "+format, append([]any{regtune.ErrInvalidParameter}, args...)...),
	))
}

// score trains s on the training pair with params and returns R² on the
// validation pair.
func score(s Strategy, params regtune.Params, xTrain regtune.FeatureMatrix, yTrain regtune.TargetVector, xVal regtune.FeatureMatrix, yVal regtune.TargetVector) (float64, error) {
	artifact, err := s.Train(xTrain, yTrain, params)
	if err != nil {
		return 0, err
	}

	pred, err := artifact.Predict(xVal)
	if err != nil {
		return 0, regtune.NewError("optimize", s.Name(), regtune.TrainingFailure(err))
	}

	r2, err := metric.R2Score(yVal, pred)
	if err != nil {
		return 0, regtune.NewError("optimize", s.Name(), err)
	}

	return r2, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
