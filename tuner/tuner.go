// Package tuner finds the best hyperparameters of a model family on a
// training/validation pair, reusing cached results when allowed.
//
// The cache is loaded once at the start of Optimize and written once at the
// end; the loaded snapshot and the updated one travel with the Result, so
// the Tuner holds no cache state between calls.
package tuner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thalesfsp/regtune"
	"github.com/thalesfsp/regtune/internal/logging"
	"github.com/thalesfsp/regtune/model"
	"github.com/thalesfsp/regtune/paramstore"
)

//////
// Const, vars, types.
//////

// DefaultTrialBudget is the number of trials of a search when the caller
// has no preference.
const DefaultTrialBudget = 100

// Result is the outcome of Optimize.
type Result struct {
	// Family is the model family identifier.
	Family string

	// Params is the winning hyperparameter set.
	Params regtune.Params

	// Score is the validation R² of Params. For legacy cache entries that
	// did not record a score it is zero.
	Score float64

	// FromCache is true when Params came from the cache and no trial ran.
	FromCache bool

	// Trials is the number of trials evaluated.
	Trials int

	// Failed is the number of trials that failed and were skipped.
	Failed int

	// Path lists the states visited, Idle first and Done last.
	Path []State

	// Cache is the snapshot after the call: the loaded one on a hit, the
	// updated one after a search.
	Cache paramstore.Snapshot

	// StudyID identifies the search. Empty on a cache hit.
	StudyID string
}

// Tuner runs cache-aware hyperparameter searches for one model family.
type Tuner struct {
	strategy model.Strategy
	xTrain   regtune.FeatureMatrix
	yTrain   regtune.TargetVector
	xVal     regtune.FeatureMatrix
	yVal     regtune.TargetVector

	store    paramstore.Store
	logger   logrus.FieldLogger
	recorder *Recorder
	search   regtune.OptimizationConfig
	now      func() time.Time

	// mu serializes Optimize calls so the read-modify-write of the cache
	// has a single writer per Tuner.
	mu sync.Mutex
}

//////
// Factory.
//////

// New creates a tuner for strategy over the given training and validation
// pairs. Without options it caches to paramstore.DefaultFilename, logs
// nowhere and uses regtune.DefaultConfig for the search.
func New(
	strategy model.Strategy,
	xTrain regtune.FeatureMatrix,
	yTrain regtune.TargetVector,
	xVal regtune.FeatureMatrix,
	yVal regtune.TargetVector,
	opts ...Option,
) *Tuner {
	t := &Tuner{
		strategy: strategy,
		xTrain:   xTrain,
		yTrain:   yTrain,
		xVal:     xVal,
		yVal:     yVal,
		store:    paramstore.NewFileStore(paramstore.DefaultFilename),
		logger:   logging.Discard(),
		search:   regtune.DefaultConfig(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

//////
// Methods.
//////

// Optimize returns the best hyperparameters for the tuner's model family.
//
// Parameters:
// - ctx: Cancelling it stops the search from starting new trials
// - trialBudget: Number of trials to run on a cache miss
// - useCache: Return the cached entry of the family when one exists
//
// Returns:
// - *Result: The winning hyperparameters and how they were obtained
// - error: ErrInvalidBudget, ErrSearchFailure when every trial failed, or
// the context error
//
// Important notes:
// - On a cache hit no trial runs and the budget is ignored
// - After a search the cache is written even when useCache is false
// - Cache load and save failures are logged and never fail the call
// - The cache is re-read before the write so entries of other families
// survive; when that read fails the write is skipped
// - A family with nothing to tune runs a single trial
func (t *Tuner) Optimize(ctx context.Context, trialBudget int, useCache bool) (*Result, error) {
	family := t.strategy.Name()

	if trialBudget <= 0 {
		return nil, regtune.NewError("tune", family, fmt.Errorf("%w: got %d", regtune.ErrInvalidBudget, trialBudget))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	log := t.logger.WithField("family", family)
	result := &Result{Family: family, Path: []State{Idle, CacheCheck}}

	snapshot, err := t.store.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("Could not load cached hyperparameters, continuing without cache")
		t.recorder.RecordCacheError("load")

		snapshot = paramstore.Snapshot{}
	}

	if useCache {
		entry, ok := snapshot.Lookup(family)
		t.recorder.RecordCacheLookup(family, ok)

		if ok {
			log.WithFields(logrus.Fields{
				"params":  entry.Params,
				"skipped": trialBudget,
			}).Info("Using cached hyperparameters")

			result.Params = entry.Params
			result.Score = entry.Score
			result.FromCache = true
			result.Path = append(result.Path, CacheHit, Done)
			result.Cache = snapshot.Clone()

			t.recorder.RecordBest(family, entry.Score)

			return result, nil
		}
	}

	result.Path = append(result.Path, CacheMiss, Searching)

	log.WithField("trials", trialBudget).Info("Starting hyperparameter optimization")

	study, err := t.runStudy(ctx, trialBudget, log)
	if err != nil {
		return nil, regtune.NewError("tune", family, err)
	}

	best := study.Best
	updatedAt := t.now()
	entry := paramstore.Entry{
		Params:    best.Params(),
		Score:     best.Score,
		UpdatedAt: updatedAt,
	}

	next := t.save(ctx, log, snapshot.With(family, entry, updatedAt), family, entry, updatedAt)

	log.WithFields(logrus.Fields{
		"score":  best.Score,
		"params": best.Params(),
		"failed": study.Count(regtune.TrialFailed),
	}).Info("Optimization complete")

	t.recorder.RecordBest(family, best.Score)

	result.Params = best.Params()
	result.Score = best.Score
	result.Trials = len(study.Trials)
	result.Failed = study.Count(regtune.TrialFailed)
	result.Path = append(result.Path, Done)
	result.Cache = next
	result.StudyID = study.ID

	return result, nil
}

// save re-reads the cache, adds entry for family and writes it back. It
// returns the snapshot holding the entry: the written one, or fallback when
// the write was skipped or failed.
func (t *Tuner) save(
	ctx context.Context,
	log logrus.FieldLogger,
	fallback paramstore.Snapshot,
	family string,
	entry paramstore.Entry,
	updatedAt time.Time,
) paramstore.Snapshot {
	latest, err := t.store.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("Could not re-read cached hyperparameters, skipping save")
		t.recorder.RecordCacheError("save")

		return fallback
	}

	next := latest.With(family, entry, updatedAt)

	if err := t.store.Save(ctx, next); err != nil {
		log.WithError(err).Warn("Could not save hyperparameters")
		t.recorder.RecordCacheError("save")

		return fallback
	}

	return next
}

// runStudy runs the study over the strategy's search space.
func (t *Tuner) runStudy(ctx context.Context, trialBudget int, log logrus.FieldLogger) (*regtune.Study, error) {
	family := t.strategy.Name()

	cfg := t.search
	cfg.Trials = trialBudget

	objective := func(_ context.Context, trial *regtune.Trial) (float64, error) {
		score, err := t.strategy.Optimize(trial, t.xTrain, t.yTrain, t.xVal, t.yVal)

		fields := logrus.Fields{"trial": trial.Number, "params": trial.Params()}

		if err != nil {
			log.WithFields(fields).WithError(err).Debug("Trial failed")
			t.recorder.RecordTrial(family, regtune.TrialFailed.String(), 0, false)

			return 0, err
		}

		log.WithFields(fields).WithField("score", score).Debug("Trial complete")
		t.recorder.RecordTrial(family, regtune.TrialComplete.String(), score, true)

		return score, nil
	}

	start := time.Now()
	study, err := regtune.Optimize(ctx, cfg, t.strategy.SearchSpace(), objective)
	t.recorder.RecordSearch(family, time.Since(start))

	return study, err
}
