package model

import (
	"math/rand"

	"github.com/thalesfsp/regtune"
)

// Forest is the random forest strategy: bootstrap-aggregated regression
// trees grown on squared error with exact splits.
type Forest struct{}

// ForestModel averages the predictions of its trees.
type ForestModel struct {
	Trees    []*tree `json:"trees"`
	Features int     `json:"features"`
}

// NewRandomForest returns the random forest strategy.
func NewRandomForest() *Forest {
	return &Forest{}
}

// Name implements Strategy.
func (*Forest) Name() string { return RandomForestName }

// Family implements Strategy.
func (*Forest) Family() Family { return RandomForest }

// SearchSpace implements Strategy.
func (*Forest) SearchSpace() regtune.SearchSpace {
	return regtune.SearchSpace{
		regtune.IntParam("n_estimators", regtune.ParameterRange[int]{Min: 1, Max: 200}),
		regtune.IntParam("max_depth", regtune.ParameterRange[int]{Min: 1, Max: 20}),
		regtune.IntParam("min_samples_split", regtune.ParameterRange[int]{Min: 2, Max: 20}),
	}
}

// Defaults implements Strategy. A max_depth of 0 grows trees until their
// leaves are pure or too small to split.
func (*Forest) Defaults() regtune.Params {
	return regtune.Params{
		"n_estimators":      100,
		"max_depth":         0,
		"min_samples_split": 2,
		"min_samples_leaf":  1,
		"random_state":      42,
	}
}

// Train grows n_estimators trees, each on a bootstrap sample of the rows.
// Recognized keys beyond the search space: min_samples_leaf, random_state.
func (f *Forest) Train(x regtune.FeatureMatrix, y regtune.TargetVector, params regtune.Params) (Artifact, error) {
	p, err := resolve(f, params, "min_samples_leaf", "random_state")
	if err != nil {
		return nil, err
	}

	if err := checkInput(f.Name(), x, y); err != nil {
		return nil, err
	}

	nEstimators, err := p.Int("n_estimators", 100)
	if err != nil || nEstimators < 1 {
		return nil, invalid(f.Name(), "n_estimators=%v", p["n_estimators"])
	}

	maxDepth, err := p.Int("max_depth", 0)
	if err != nil || maxDepth < 0 {
		return nil, invalid(f.Name(), "max_depth=%v", p["max_depth"])
	}

	minSamplesSplit, err := p.Int("min_samples_split", 2)
	if err != nil || minSamplesSplit < 2 {
		return nil, invalid(f.Name(), "min_samples_split=%v", p["min_samples_split"])
	}

	minSamplesLeaf, err := p.Int("min_samples_leaf", 1)
	if err != nil || minSamplesLeaf < 1 {
		return nil, invalid(f.Name(), "min_samples_leaf=%v", p["min_samples_leaf"])
	}

	seed, err := p.Int("random_state", 42)
	if err != nil {
		return nil, invalid(f.Name(), "random_state=%v", p["random_state"])
	}

	cfg := &growConfig{
		maxDepth:        maxDepth,
		minSamplesSplit: minSamplesSplit,
		minSamplesLeaf:  minSamplesLeaf,
		shrinkage:       1,
	}

	// With zero predictions and unit hessians, -G/H is the mean target of a
	// leaf and the gain is the reduction of squared error.
	grad := make([]float64, len(y))
	hess := make([]float64, len(y))

	for i, v := range y {
		grad[i] = -v
		hess[i] = 1
	}

	rng := rand.New(rand.NewSource(int64(seed)))
	s := &exactSplitter{x: x}
	n := x.Rows()

	model := &ForestModel{Trees: make([]*tree, nEstimators), Features: x.Cols()}

	for k := range model.Trees {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}

		model.Trees[k] = grow(sample, grad, hess, cfg, s)
	}

	return model, nil
}

// Optimize implements Strategy.
func (f *Forest) Optimize(trial *regtune.Trial, xTrain regtune.FeatureMatrix, yTrain regtune.TargetVector, xVal regtune.FeatureMatrix, yVal regtune.TargetVector) (float64, error) {
	return score(f, trial.Params(), xTrain, yTrain, xVal, yVal)
}

// Predict implements Artifact.
func (m *ForestModel) Predict(x regtune.FeatureMatrix) ([]float64, error) {
	if err := checkWidth(x, m.Features); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))

	for i, row := range x {
		var sum float64

		for _, t := range m.Trees {
			sum += t.predictRow(row)
		}

		out[i] = sum / float64(len(m.Trees))
	}

	return out, nil
}
