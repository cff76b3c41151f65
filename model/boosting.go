package model

import (
	"fmt"

	"github.com/thalesfsp/regtune"
	"gonum.org/v1/gonum/stat"
)

//////
// Const, vars, types.
//////

// boostConfig is the resolved configuration of a boosting run.
type boostConfig struct {
	rounds    int
	histogram bool
	maxBins   int
	grow      growConfig
}

// BoostedModel is an additive ensemble of regression trees fitted to the
// residuals of the ensemble before them.
type BoostedModel struct {
	Base     float64 `json:"base"`
	Trees    []*tree `json:"trees"`
	Features int     `json:"features"`
}

// Boosting is the gradient boosting strategy in one of two flavours.
type Boosting struct {
	family Family
}

//////
// Factory.
//////

// NewLightGBM returns leaf-wise gradient boosting with histogram splits.
func NewLightGBM() *Boosting {
	return &Boosting{family: LightGBM}
}

// NewXGBoost returns depth-wise gradient boosting with exact splits and L2
// leaf regularization.
func NewXGBoost() *Boosting {
	return &Boosting{family: XGBoost}
}

//////
// Methods.
//////

// Name implements Strategy.
func (b *Boosting) Name() string { return b.family.String() }

// Family implements Strategy.
func (b *Boosting) Family() Family { return b.family }

// SearchSpace implements Strategy.
func (b *Boosting) SearchSpace() regtune.SearchSpace {
	if b.family == XGBoost {
		return regtune.SearchSpace{
			regtune.IntParam("n_estimators", regtune.ParameterRange[int]{Min: 1, Max: 200}),
			regtune.IntParam("max_depth", regtune.ParameterRange[int]{Min: 1, Max: 30}),
			regtune.LogFloatParam("learning_rate", regtune.ParameterRange[float64]{Min: 1e-7, Max: 10.0}),
		}
	}

	return regtune.SearchSpace{
		regtune.IntParam("n_estimators", regtune.ParameterRange[int]{Min: 1, Max: 200}),
		regtune.IntParam("max_depth", regtune.ParameterRange[int]{Min: 1, Max: 20}),
		regtune.FloatParam("learning_rate", regtune.ParameterRange[float64]{Min: 0.01, Max: 0.99}),
	}
}

// Defaults implements Strategy.
//
// LightGBM: max_depth -1 (unlimited), num_leaves 31, min_child_samples 20,
// max_bin 255, reg_lambda 0.
//
// XGBoost: max_depth 6, reg_lambda 1, gamma 0, min_child_weight 1.
func (b *Boosting) Defaults() regtune.Params {
	if b.family == XGBoost {
		return regtune.Params{
			"n_estimators":     100,
			"max_depth":        6,
			"learning_rate":    0.3,
			"reg_lambda":       1.0,
			"gamma":            0.0,
			"min_child_weight": 1.0,
		}
	}

	return regtune.Params{
		"n_estimators":      100,
		"max_depth":         -1,
		"learning_rate":     0.1,
		"num_leaves":        31,
		"min_child_samples": 20,
		"max_bin":           defaultMaxBins,
		"reg_lambda":        0.0,
	}
}

// extraKeys lists the recognized keys outside the search space.
func (b *Boosting) extraKeys() []string {
	if b.family == XGBoost {
		return []string{"reg_lambda", "gamma", "min_child_weight"}
	}

	return []string{"num_leaves", "min_child_samples", "max_bin", "reg_lambda"}
}

// Train runs n_estimators boosting rounds on squared error, starting from
// the mean target.
func (b *Boosting) Train(x regtune.FeatureMatrix, y regtune.TargetVector, params regtune.Params) (Artifact, error) {
	p, err := resolve(b, params, b.extraKeys()...)
	if err != nil {
		return nil, err
	}

	if err := checkInput(b.Name(), x, y); err != nil {
		return nil, err
	}

	cfg, err := b.config(p)
	if err != nil {
		return nil, err
	}

	var s splitter = &exactSplitter{x: x}
	if cfg.histogram {
		s = newHistogramSplitter(x, cfg.maxBins)
	}

	n := x.Rows()

	model := &BoostedModel{
		Base:     stat.Mean(y, nil),
		Trees:    make([]*tree, 0, cfg.rounds),
		Features: x.Cols(),
	}

	rows := make([]int, n)
	pred := make([]float64, n)
	grad := make([]float64, n)
	hess := make([]float64, n)

	for i := range rows {
		rows[i] = i
		pred[i] = model.Base
		hess[i] = 1
	}

	for round := 0; round < cfg.rounds; round++ {
		for i := range grad {
			grad[i] = pred[i] - y[i]
		}

		t := grow(rows, grad, hess, &cfg.grow, s)
		model.Trees = append(model.Trees, t)

		for i, row := range x {
			pred[i] += t.predictRow(row)

			if !finite(pred[i]) {
				return nil, regtune.NewError("train", b.Name(), regtune.TrainingFailure(
					fmt.Errorf("%w: prediction diverged at round %d", regtune.ErrNonFiniteValue, round),
				))
			}
		}
	}

	return model, nil
}

// Optimize implements Strategy.
func (b *Boosting) Optimize(trial *regtune.Trial, xTrain regtune.FeatureMatrix, yTrain regtune.TargetVector, xVal regtune.FeatureMatrix, yVal regtune.TargetVector) (float64, error) {
	return score(b, trial.Params(), xTrain, yTrain, xVal, yVal)
}

// config validates the merged hyperparameters.
func (b *Boosting) config(p regtune.Params) (*boostConfig, error) {
	name := b.Name()

	rounds, err := p.Int("n_estimators", 100)
	if err != nil || rounds < 1 {
		return nil, invalid(name, "n_estimators=%v", p["n_estimators"])
	}

	maxDepth, err := p.Int("max_depth", 0)
	if err != nil {
		return nil, invalid(name, "max_depth=%v", p["max_depth"])
	}

	lr, err := p.Float("learning_rate", 0.1)
	if err != nil || !finite(lr) || lr <= 0 {
		return nil, invalid(name, "learning_rate=%v", p["learning_rate"])
	}

	lambda, err := p.Float("reg_lambda", 0)
	if err != nil || lambda < 0 {
		return nil, invalid(name, "reg_lambda=%v", p["reg_lambda"])
	}

	cfg := &boostConfig{
		rounds: rounds,
		grow: growConfig{
			maxDepth:        maxDepth,
			minSamplesSplit: 2,
			minSamplesLeaf:  1,
			lambda:          lambda,
			shrinkage:       lr,
		},
	}

	if b.family == XGBoost {
		if maxDepth < 1 {
			return nil, invalid(name, "max_depth=%v", p["max_depth"])
		}

		gamma, err := p.Float("gamma", 0)
		if err != nil || gamma < 0 {
			return nil, invalid(name, "gamma=%v", p["gamma"])
		}

		minChildWeight, err := p.Float("min_child_weight", 1)
		if err != nil || minChildWeight < 0 {
			return nil, invalid(name, "min_child_weight=%v", p["min_child_weight"])
		}

		cfg.grow.gamma = gamma
		cfg.grow.minChildWeight = minChildWeight

		return cfg, nil
	}

	numLeaves, err := p.Int("num_leaves", 31)
	if err != nil || numLeaves < 2 {
		return nil, invalid(name, "num_leaves=%v", p["num_leaves"])
	}

	minChildSamples, err := p.Int("min_child_samples", 20)
	if err != nil || minChildSamples < 1 {
		return nil, invalid(name, "min_child_samples=%v", p["min_child_samples"])
	}

	maxBin, err := p.Int("max_bin", defaultMaxBins)
	if err != nil || maxBin < 2 || maxBin > 1<<16-1 {
		return nil, invalid(name, "max_bin=%v", p["max_bin"])
	}

	cfg.histogram = true
	cfg.maxBins = maxBin
	cfg.grow.maxLeaves = numLeaves
	cfg.grow.minSamplesLeaf = minChildSamples
	cfg.grow.minSamplesSplit = 2 * minChildSamples
	cfg.grow.minChildWeight = 1e-3

	return cfg, nil
}

// Predict implements Artifact.
func (m *BoostedModel) Predict(x regtune.FeatureMatrix) ([]float64, error) {
	if err := checkWidth(x, m.Features); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))

	for i, row := range x {
		v := m.Base
		for _, t := range m.Trees {
			v += t.predictRow(row)
		}

		if !finite(v) {
			return nil, fmt.Errorf("%w: prediction for row %d", regtune.ErrNonFiniteValue, i)
		}

		out[i] = v
	}

	return out, nil
}
