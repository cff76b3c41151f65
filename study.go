package regtune

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

//////
// Const, vars, types.
//////

const (
	phaseInitial      = "InitialSampling"
	phaseOptimization = "Optimization"
)

// Study is the record of one search: every trial that ran, in trial-number
// order, and the best one.
type Study struct {
	// ID uniquely identifies the study.
	ID string

	// Trials lists the evaluated trials ordered by Number.
	Trials []*Trial

	// Best is the completed trial with the highest score; ties go to the
	// lower trial number. Nil when no trial completed.
	Best *Trial
}

// BestParams returns a copy of the best trial's hyperparameters, or nil.
func (s *Study) BestParams() Params {
	if s.Best == nil {
		return nil
	}

	return s.Best.Params()
}

// Count returns how many trials ended in the given state.
func (s *Study) Count(state TrialState) int {
	var n int

	for _, t := range s.Trials {
		if t.State == state {
			n++
		}
	}

	return n
}

//////
// Exported functionalities.
//////

// DefaultConfig returns a default configuration: 100 trials, the first 10
// uniformly random, UCB acquisition over 64 candidates, single worker.
func DefaultConfig() OptimizationConfig {
	return OptimizationConfig{
		Trials:          100,
		InitialSamples:  10,
		NumCandidates:   64,
		Workers:         1,
		KernelWidth:     defaultKernelWidth,
		AcquisitionFunc: UCB,
		AcqParams: AcquisitionParams{
			BestSoFar: math.MaxFloat64,
			Beta:      2.0,
			Xi:        0.01,
		},
		ProgressChan: nil, // Default to no progress updates.
	}
}

// Optimize searches space for the hyperparameters that maximize objective.
//
// Parameters:
// - ctx: Cancelling it stops new trials from starting
// - config: OptimizationConfig controlling the search
// - space: The declared domain of every tunable parameter
// - objective: Trains and scores one candidate
//
// Returns:
// - *Study: Every evaluated trial and the best one
// - error: ErrInvalidBudget, ErrInvalidSearchSpace, ErrSearchFailure when
// no trial completed, or the context error when cancelled early
//
// How it works:
// 1. Evaluates InitialSamples uniformly random points
// 2. For every further trial:
//   - Generates NumCandidates random candidate points
//   - Uses the Gaussian Process to predict the loss of each candidate
//   - Uses AcquisitionFunc to select the most promising one
//   - Evaluates it and updates the model
//
// Important notes:
// - Exactly config.Trials trials run; an empty space runs a single trial
// since every trial would propose the same (empty) candidate
// - Failed trials are recorded and skipped
// - Best selection is order independent, so Workers > 1 returns the same
// best trial for the same set of (params, score) pairs
func Optimize(ctx context.Context, config OptimizationConfig, space SearchSpace, objective Objective) (*Study, error) {
	if config.Trials <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBudget, config.Trials)
	}

	if err := space.Validate(); err != nil {
		return nil, err
	}

	if config.AcquisitionFunc == nil {
		config.AcquisitionFunc = UCB
	}

	total := config.Trials
	if len(space) == 0 {
		total = 1
	}

	workers := config.Workers
	if workers < 1 {
		workers = 1
	}

	if workers > total {
		workers = total
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// rng, gp, best and the trial slots are shared by the workers and
	// protected by mu.
	rng := rand.New(rand.NewSource(seed))
	if config.AcqParams.RandomState == nil {
		config.AcqParams.RandomState = rng
	}

	gp := newGaussianProcess(config.KernelWidth)

	study := &Study{ID: uuid.NewString()}
	slots := make([]*Trial, total)

	var mu sync.Mutex

	randomPoint := func() []float64 {
		point := make([]float64, len(space))
		for i := range point {
			point[i] = rng.Float64()
		}

		return point
	}

	// propose returns the next point to evaluate and the phase it belongs to.
	// Caller must hold mu.
	propose := func(number int) ([]float64, string) {
		if number < config.InitialSamples || gp.Len() < 2 || config.NumCandidates < 1 {
			return randomPoint(), phaseInitial
		}

		if study.Best != nil {
			config.AcqParams.BestSoFar = -study.Best.Score
		}

		var next []float64

		bestAcquisition := math.Inf(1)

		for j := 0; j < config.NumCandidates; j++ {
			candidate := randomPoint()

			mean, variance := gp.Predict(candidate)

			acquisition := config.AcquisitionFunc(mean, variance, config.AcqParams)
			if next == nil || acquisition < bestAcquisition {
				bestAcquisition = acquisition
				next = candidate
			}
		}

		return next, phaseOptimization
	}

	sendProgress := func(phase string, trial *Trial) {
		if config.ProgressChan == nil {
			return
		}

		update := ProgressUpdate{
			Phase:            phase,
			CurrentIteration: trial.Number + 1,
			TotalIterations:  total,
			CurrentParams:    trial.Params(),
			LastScore:        trial.Score,
			LastErr:          trial.Err,
		}

		if study.Best != nil {
			update.CurrentBestParams = study.Best.Params()
			update.CurrentBestScore = study.Best.Score
		}

		select {
		case config.ProgressChan <- update:
		default:
			// Skip update if channel is full.
		}
	}

	// record stores a finished trial and folds it into the model and the
	// running best. Caller must hold mu.
	record := func(trial *Trial) {
		slots[trial.Number] = trial

		if trial.State != TrialComplete {
			return
		}

		gp.Update(trial.point, -trial.Score)

		if better(trial, study.Best) {
			study.Best = trial
		}
	}

	evaluate := func(number int) {
		mu.Lock()
		point, phase := propose(number)
		mu.Unlock()

		trial := newTrial(number, space, point)

		start := time.Now()
		score, err := objective(ctx, trial)
		trial.Duration = time.Since(start)

		switch {
		case err != nil:
			trial.State = TrialFailed
			trial.Err = err
		case !isFinite(score):
			trial.State = TrialFailed
			trial.Err = fmt.Errorf("%w: objective returned %v", ErrTrainingFailure, score)
		default:
			trial.State = TrialComplete
			trial.Score = score
		}

		mu.Lock()
		record(trial)
		sendProgress(phase, trial)
		mu.Unlock()
	}

	numbers := make(chan int)

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for number := range numbers {
				evaluate(number)
			}
		}()
	}

feed:
	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
			break feed
		case numbers <- i:
		}
	}

	close(numbers)
	wg.Wait()

	for _, trial := range slots {
		if trial != nil {
			study.Trials = append(study.Trials, trial)
		}
	}

	if err := ctx.Err(); err != nil && len(study.Trials) < total {
		return study, err
	}

	if study.Best == nil {
		return study, fmt.Errorf("%w: all %d trials failed: %w", ErrSearchFailure, len(study.Trials), lastError(study.Trials))
	}

	return study, nil
}

//////
// Helper functions.
//////

// better reports whether a beats b: higher score, then lower trial number.
func better(a, b *Trial) bool {
	if b == nil {
		return true
	}

	if a.Score != b.Score {
		return a.Score > b.Score
	}

	return a.Number < b.Number
}

// lastError returns the error of the highest-numbered failed trial.
func lastError(trials []*Trial) error {
	for i := len(trials) - 1; i >= 0; i-- {
		if trials[i].Err != nil {
			return trials[i].Err
		}
	}

	return errors.New("no trial ran")
}
