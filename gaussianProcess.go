package regtune

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//////
// Const, vars, types.
//////

const (
	// defaultKernelWidth suits inputs scaled to the unit hypercube.
	defaultKernelWidth = 0.25

	// noiseVariance is added to the kernel diagonal. Trial scores are
	// close to deterministic but not exactly (bootstrap, ties).
	noiseVariance = 1e-6
)

// gaussianProcess is a thread-safe Gaussian Process regressor over points of
// the unit hypercube. It predicts the loss of untested hyperparameter
// combinations from the trials observed so far.
//
// Fields:
// - mu: RWMutex for thread-safe access to all fields
// - X: Observed input points
// - Y: Observed losses at each input point
// - sigma: RBF kernel width
// - chol, alpha, yMean, yStd: posterior cache, rebuilt lazily after Update
//
// Thread safety:
// - Update takes the write lock and invalidates the cache
// - Predict takes the write lock since it may rebuild the cache
type gaussianProcess struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// X stores the observed points (unit hypercube coordinates)
	X [][]float64

	// Y stores the observed losses at each point in X
	Y []float64

	// sigma is the kernel width parameter
	sigma float64

	fitted bool
	chol   mat.Cholesky
	alpha  *mat.VecDense
	yMean  float64
	yStd   float64
}

//////
// Methods.
//////

// RBFKernel implements the Radial Basis Function kernel.
//
// Mathematical formula:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
//
// Important notes:
// - Panics if input vectors have different lengths
// - Returns 1.0 for identical points
// - Caller must hold gp.mu
func (gp *gaussianProcess) RBFKernel(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * gp.sigma * gp.sigma))
}

// fit factorizes the kernel matrix of the observations. Losses are
// standardized so the unit prior variance of the kernel matches the data.
// Caller must hold the write lock.
func (gp *gaussianProcess) fit() bool {
	n := len(gp.X)
	if n == 0 {
		return false
	}

	gp.yMean, gp.yStd = stat.MeanStdDev(gp.Y, nil)
	if n < 2 || !isFinite(gp.yStd) || gp.yStd == 0 {
		gp.yStd = 1
	}

	y := make([]float64, n)
	for i, v := range gp.Y {
		y[i] = (v - gp.yMean) / gp.yStd
	}

	// Retry with growing jitter if the matrix is not numerically positive
	// definite (duplicated points).
	for jitter := noiseVariance; jitter < 1; jitter *= 100 {
		k := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := gp.RBFKernel(gp.X[i], gp.X[j])
				if i == j {
					v += jitter
				}

				k.SetSym(i, j, v)
			}
		}

		if !gp.chol.Factorize(k) {
			continue
		}

		alpha := mat.NewVecDense(n, nil)
		if err := gp.chol.SolveVecTo(alpha, mat.NewVecDense(n, y)); err != nil {
			continue
		}

		gp.alpha = alpha
		gp.fitted = true

		return true
	}

	return false
}

// Predict estimates the loss and its uncertainty at x.
//
// Returns:
// - mean: Posterior mean of the loss at x
// - variance: Posterior variance in loss units (higher = less certain)
//
// Important notes:
// - Returns (0, 1) if no observations exist
// - O(n^2) per call once the posterior is cached, O(n^3) to rebuild it
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if len(gp.X) == 0 {
		return 0, 1
	}

	if !gp.fitted && !gp.fit() {
		// Factorization failed even with jitter; fall back to the sample
		// mean and the prior variance.
		return stat.Mean(gp.Y, nil), 1
	}

	n := len(gp.X)

	kStar := mat.NewVecDense(n, nil)
	for i := range gp.X {
		kStar.SetVec(i, gp.RBFKernel(x, gp.X[i]))
	}

	mean = mat.Dot(kStar, gp.alpha)*gp.yStd + gp.yMean

	v := mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(v, kStar); err != nil {
		return mean, gp.yStd * gp.yStd
	}

	variance = math.Max(1-mat.Dot(kStar, v), minVariance) * gp.yStd * gp.yStd

	return mean, variance
}

// Update adds a new observation to the model.
//
// Important notes:
// - Creates a deep copy of x to prevent external modifications
// - Invalidates the cached posterior
func (gp *gaussianProcess) Update(x []float64, y float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	newX := make([]float64, len(x))
	copy(newX, x)

	gp.X = append(gp.X, newX)
	gp.Y = append(gp.Y, y)
	gp.fitted = false
}

// Len returns the number of observations.
func (gp *gaussianProcess) Len() int {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return len(gp.X)
}

//////
// Factory.
//////

// newGaussianProcess creates a model with the given kernel width, or the
// default width when sigma is not positive.
func newGaussianProcess(sigma float64) *gaussianProcess {
	if sigma <= 0 {
		sigma = defaultKernelWidth
	}

	return &gaussianProcess{sigma: sigma}
}
