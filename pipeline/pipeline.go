// Package pipeline is the training step: it selects a model family by name,
// optionally tunes its hyperparameters, fits the final model on the training
// rows and evaluates it on the held-out rows.
package pipeline

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/thalesfsp/regtune"
	"github.com/thalesfsp/regtune/config"
	"github.com/thalesfsp/regtune/dataset"
	"github.com/thalesfsp/regtune/internal/logging"
	"github.com/thalesfsp/regtune/metric"
	"github.com/thalesfsp/regtune/model"
	"github.com/thalesfsp/regtune/tuner"
)

//////
// Const, vars, types.
//////

// Outcome is the result of a training step.
type Outcome struct {
	// Family is the identifier of the trained model family.
	Family string

	// Artifact is the fitted model.
	Artifact model.Artifact

	// Params are the hyperparameters of the final fit, defaults included.
	Params regtune.Params

	// Report holds the held-out metrics. R2 is NaN for a constant test
	// target.
	Report metric.Report

	// Tuning is the tuner result, nil when fine tuning is off.
	Tuning *tuner.Result
}

// Option configures Train.
type Option func(*settings)

type settings struct {
	logger logrus.FieldLogger
	tuning []tuner.Option
}

// WithLogger sets the logger of the step and of the tuner.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
			s.tuning = append(s.tuning, tuner.WithLogger(logger))
		}
	}
}

// WithTuning forwards options to the tuner.
func WithTuning(opts ...tuner.Option) Option {
	return func(s *settings) {
		s.tuning = append(s.tuning, opts...)
	}
}

//////
// Exported functionalities.
//////

// SearchConfig converts the search section of the configuration.
func SearchConfig(cfg config.Search) regtune.OptimizationConfig {
	out := regtune.DefaultConfig()

	out.InitialSamples = cfg.InitialSamples
	out.NumCandidates = cfg.NumCandidates
	out.Workers = cfg.Workers
	out.Seed = cfg.Seed
	out.AcquisitionFunc = regtune.AcquisitionByName(cfg.Acquisition)
	out.AcqParams.Beta = cfg.Beta
	out.AcqParams.Xi = cfg.Xi

	if cfg.KernelWidth > 0 {
		out.KernelWidth = cfg.KernelWidth
	}

	return out
}

// Train runs the training step on split.
//
// Parameters:
// - ctx: Cancels the hyperparameter search
// - split: Training and held-out rows
// - cfg: Model selection and tuning switches
//
// Returns:
// - *Outcome: The fitted model, its hyperparameters and held-out metrics
// - error: ErrUnknownModel, ErrSearchFailure, ErrTrainingFailure or a
// metric error
//
// Important notes:
// - With fine tuning the tuner scores trials on the held-out rows
// - Tuned hyperparameters are merged over the family defaults
// - Without fine tuning the family defaults are used
func Train(ctx context.Context, split dataset.Split, cfg config.Model, opts ...Option) (*Outcome, error) {
	s := &settings{logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}

	family, err := model.ParseFamily(cfg.Name)
	if err != nil {
		return nil, err
	}

	strategy, err := model.New(family)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithField("family", strategy.Name())
	outcome := &Outcome{Family: strategy.Name()}

	var params regtune.Params

	if cfg.FineTuning {
		budget := cfg.TrialBudget
		if budget <= 0 {
			budget = tuner.DefaultTrialBudget
		}

		t := tuner.New(strategy, split.XTrain, split.YTrain, split.XTest, split.YTest, s.tuning...)

		result, err := t.Optimize(ctx, budget, cfg.UseCachedParams)
		if err != nil {
			return nil, err
		}

		log.WithFields(logrus.Fields{
			"from_cache": result.FromCache,
			"trials":     result.Trials,
			"score":      result.Score,
		}).Info("Hyperparameters selected")

		params = result.Params
		outcome.Tuning = result
	}

	artifact, err := strategy.Train(split.XTrain, split.YTrain, params)
	if err != nil {
		return nil, err
	}

	report, err := metric.Evaluate(artifact, split.XTest, split.YTest)
	if err != nil {
		return nil, regtune.NewError("evaluate", strategy.Name(), err)
	}

	outcome.Artifact = artifact
	outcome.Params = strategy.Defaults().Merge(params)
	outcome.Report = report

	fields := logrus.Fields{"mse": report.MSE, "rmse": report.RMSE, "mae": report.MAE}
	if !math.IsNaN(report.R2) {
		fields["r2"] = report.R2
	}

	log.WithFields(fields).Info("Model trained")

	return outcome, nil
}
