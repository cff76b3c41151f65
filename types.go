package regtune

import (
	"context"
	"math/rand"

	"golang.org/x/exp/constraints"
)

// ProgressUpdate represents the state of a study after one trial finished.
type ProgressUpdate struct {
	// Phase is "InitialSampling" while candidates are drawn uniformly and
	// "Optimization" once the Gaussian Process guides the proposals.
	Phase string

	// CurrentIteration is the 1-based number of the trial that just finished.
	CurrentIteration int

	// TotalIterations is the trial budget of the study.
	TotalIterations int

	// CurrentParams holds the hyperparameters the trial evaluated.
	CurrentParams Params

	// CurrentBestParams holds the best hyperparameters found so far. Nil
	// until a trial succeeds.
	CurrentBestParams Params

	// CurrentBestScore holds the best score found so far.
	CurrentBestScore float64

	// LastScore holds the score of the trial that just finished.
	LastScore float64

	// LastErr holds the objective error if the trial failed.
	LastErr error
}

// ParameterRange defines the inclusive bounds of a numeric hyperparameter.
//
// Type Parameter:
//   - T: The numeric type for this parameter range (int or float64)
//
// Usage:
//
//	// Number of trees from 1 to 200
//	trees := IntParam("n_estimators", ParameterRange[int]{Min: 1, Max: 200})
//
//	// Learning rate from 1e-7 to 10, log density
//	lr := LogFloatParam("learning_rate", ParameterRange[float64]{Min: 1e-7, Max: 10})
//
// Validation:
// - Min must be less than or equal to Max
// - The range is inclusive of both Min and Max values
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive).
	Min T

	// Max defines the maximum allowed value (inclusive).
	Max T
}

// Objective evaluates one trial and returns the score to maximize.
//
// An error marks the trial as failed; the study skips it and keeps going.
// Returning a NaN or infinite score is treated the same way.
//
// Usage example:
//
//	objective := Objective(func(ctx context.Context, trial *Trial) (float64, error) {
//	    depth, err := trial.Int("max_depth")
//	    if err != nil {
//	        return 0, err
//	    }
//
//	    return fitAndScore(depth)
//	})
type Objective func(ctx context.Context, trial *Trial) (float64, error)

// AcquisitionFunc decides which candidate point to evaluate next.
//
// The Gaussian Process models the loss (the negated score), so the
// acquisition contract is the same as for a minimizer:
//
// Parameters:
// - mean: The predicted loss at a point
// - variance: The predicted variance/uncertainty at that point
// - params: Additional parameters needed by specific acquisition functions
//
// Returns:
// - float64: Acquisition value (lower values indicate more promising points)
//
// Built-in acquisition functions:
// - UCB: Upper Confidence Bound on the score
// - ProbabilityOfImprovement: Probability of beating the best score
// - ExpectedImprovement: Expected magnitude of improvement
// - ThompsonSampling: Random sampling from posterior
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters used by the acquisition functions.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off of UCB.
	// - Higher values (e.g., 3.0 or 5.0) encourage more exploration
	// - Lower values (e.g., 0.1 or 0.5) focus on known good areas
	Beta float64

	// Xi is the minimum improvement PI and EI look for, in loss units.
	// Typical values range from 0.01 to 0.1.
	Xi float64

	// BestSoFar is the lowest loss (highest score, negated) observed so far.
	// Maintained by the study; any initial value is overwritten.
	BestSoFar float64

	// RandomState is the random number generator used by Thompson Sampling.
	// When nil the study injects its own generator.
	RandomState *rand.Rand
}

// OptimizationConfig holds all configuration parameters of a study.
//
// Fields explanation:
// - Trials: Number of trials to evaluate (the trial budget)
// - InitialSamples: Number of uniformly random trials before GP guidance
// - NumCandidates: Number of random candidates scored per guided trial
// - Workers: Number of trials evaluated concurrently
// - KernelWidth: RBF kernel width in unit-hypercube coordinates
// - Seed: Seed of the candidate generator (0 = time based)
// - AcquisitionFunc: Strategy for choosing next points to evaluate
// - AcqParams: Parameters for the acquisition function
//
// Usage example:
//
//	config := DefaultConfig()
//	config.Trials = 50
//	config.AcquisitionFunc = ExpectedImprovement
//	config.Seed = 42
//
// Performance impact notes:
// - Higher Trials = better results but longer total runtime
// - Higher NumCandidates = better per-trial proposals, slower proposals
// - Workers > 1 only helps when the objective is CPU-heavy and thread-safe
type OptimizationConfig struct {
	// Trials is the exact number of objective evaluations. A study over an
	// empty search space always runs a single trial.
	Trials int

	// InitialSamples determines how many uniformly random points are
	// evaluated before the Gaussian Process starts guiding the search.
	InitialSamples int

	// NumCandidates determines how many random candidates the acquisition
	// function ranks before each guided trial.
	NumCandidates int

	// Workers is the number of trials evaluated concurrently. Values below 1
	// are treated as 1.
	Workers int

	// KernelWidth is the RBF length scale used by the Gaussian Process.
	KernelWidth float64

	// Seed seeds the candidate generator. Zero means time based.
	Seed int64

	// AcquisitionFunc determines the strategy for selecting the next point.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams

	// ProgressChan is used to send progress updates during optimization.
	// If nil, no updates will be sent. Updates are dropped when full.
	ProgressChan chan<- ProgressUpdate
}
