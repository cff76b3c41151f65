// Package regtune trains regression models that predict a target score from
// tabular features. It chooses among interchangeable model families, tunes
// each family's hyperparameters with a bounded Bayesian search and caches the
// winning hyperparameters so repeated runs skip redundant searches.
//
// This root package holds the shared vocabulary (FeatureMatrix, TargetVector,
// Params, the error taxonomy) and the search engine. Subpackages build on it:
//
//   - metric: MSE, RMSE, R2Score and MAE scoring functions
//   - model: the Strategy capability and its four model families
//   - tuner: the cache-aware hyperparameter tuner
//   - paramstore: file, Redis and PostgreSQL stores for cached parameters
//   - pipeline: the training step (select, tune, retrain, evaluate)
//   - dataset: CSV loading, cleaning and stratified splitting
//   - config: YAML and environment configuration
//
// # Features
//
//   - Bayesian Optimization: a Gaussian Process over the unit hypercube guides
//     the proposals after an initial random phase
//   - Mixed search spaces: integer ranges, linear or logarithmic float ranges
//     and categorical choices
//   - Multiple Acquisition Functions: Upper Confidence Bound (UCB), Probability
//     of Improvement (PI), Expected Improvement (EI) and Thompson Sampling
//   - Fault tolerant: failing trials are recorded and skipped; the search only
//     fails when no trial succeeded
//   - Optional parallel trial evaluation with an order-independent best-trial
//     reduction
//   - Progress Monitoring: real-time updates on optimization progress via channels
//
// # Search spaces
//
// A search space is a list of parameter declarations:
//
//	space := regtune.SearchSpace{
//	    regtune.IntParam("n_estimators", regtune.ParameterRange[int]{Min: 1, Max: 200}),
//	    regtune.IntParam("max_depth", regtune.ParameterRange[int]{Min: 1, Max: 30}),
//	    regtune.LogFloatParam("learning_rate", regtune.ParameterRange[float64]{Min: 1e-7, Max: 10}),
//	}
//
// # Running a study
//
//	config := regtune.DefaultConfig()
//	config.Trials = 50
//
//	study, err := regtune.Optimize(ctx, config, space, func(ctx context.Context, trial *regtune.Trial) (float64, error) {
//	    return trainAndScore(trial.Params())
//	})
//	if err != nil {
//	    return err
//	}
//
//	best := study.BestParams()
//
// # Acquisition Functions
//
// The Gaussian Process models the loss (negated score). Every acquisition
// function returns lower values for more promising points:
//
//	config.AcquisitionFunc = regtune.ExpectedImprovement
//	config.AcqParams.Xi = 0.01
//
// # Thread Safety
//
//   - Optimize may be called concurrently with different configs
//   - With Workers > 1 the objective must be safe for concurrent use
//   - Progress updates are sent without blocking and dropped when the
//     channel is full
package regtune
