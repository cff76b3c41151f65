package regtune

import "math"

//////
// Available acquisition functions for Bayesian optimization.
// They rank candidates by the Gaussian Process posterior of the loss
// (negated score): lower acquisition values mark more promising points.
//////

// minVariance keeps the posterior standard deviation strictly positive.
const minVariance = 1e-12

// UCB implements the Upper Confidence Bound acquisition function.
//
// How it works:
// - Subtracts a multiple of the uncertainty from the predicted loss, which
// is the same as adding it to the predicted score
// - The Beta parameter controls the trade-off between exploration and exploitation
//
// Example:
//
//	params := AcquisitionParams{Beta: 2.0}
//	value := UCB(-0.5, 0.2, params)
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(math.Max(variance, minVariance))
}

// ProbabilityOfImprovement (PI) returns the negated probability that a
// point beats the best loss by at least Xi.
//
// When to use:
// - When you want to be conservative in exploring new points
// - When small, reliable improvements are enough
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(math.Max(variance, minVariance))

	z := (params.BestSoFar - params.Xi - mean) / sigma

	return -normalCDF(z)
}

// ExpectedImprovement (EI) returns the negated expected improvement over the
// best loss.
//
// When to use:
// - Most commonly used acquisition function
// - When both the size and the probability of improvement matter
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(math.Max(variance, minVariance))

	improvement := params.BestSoFar - params.Xi - mean
	z := improvement / sigma

	return -(improvement*normalCDF(z) + sigma*normalPDF(z))
}

// ThompsonSampling draws one sample from the posterior of the loss.
//
// Warning:
// - RandomState must be set; the study injects one when it is nil.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(math.Max(variance, minVariance))*params.RandomState.NormFloat64()
}

// AcquisitionByName resolves the configuration names "ucb", "pi", "ei" and
// "thompson". Unknown names fall back to UCB.
func AcquisitionByName(name string) AcquisitionFunc {
	switch name {
	case "pi":
		return ProbabilityOfImprovement
	case "ei":
		return ExpectedImprovement
	case "thompson":
		return ThompsonSampling
	default:
		return UCB
	}
}
