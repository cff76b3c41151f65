package tuner

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thalesfsp/regtune"
	"github.com/thalesfsp/regtune/model"
	"github.com/thalesfsp/regtune/paramstore"
)

// counting records every score the wrapped strategy returns.
type counting struct {
	model.Strategy

	mu     sync.Mutex
	scores []float64
	calls  int
}

func (c *counting) Optimize(trial *regtune.Trial, xTrain regtune.FeatureMatrix, yTrain regtune.TargetVector, xVal regtune.FeatureMatrix, yVal regtune.TargetVector) (float64, error) {
	score, err := c.Strategy.Optimize(trial, xTrain, yTrain, xVal, yVal)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++

	if err == nil {
		c.scores = append(c.scores, score)
	}

	return score, err
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Load(context.Context) (paramstore.Snapshot, error) {
	return paramstore.Snapshot{}, errors.New("disk on fire")
}

func (brokenStore) Save(context.Context, paramstore.Snapshot) error {
	return errors.New("disk on fire")
}

// flakyStore fails the first failLoads calls to Load and counts saves.
type flakyStore struct {
	*paramstore.MemoryStore

	mu        sync.Mutex
	failLoads int
	loads     int
	saves     int
}

func (f *flakyStore) Load(ctx context.Context) (paramstore.Snapshot, error) {
	f.mu.Lock()
	f.loads++
	fail := f.loads <= f.failLoads
	f.mu.Unlock()

	if fail {
		return paramstore.Snapshot{}, errors.New("connection reset")
	}

	return f.MemoryStore.Load(ctx)
}

func (f *flakyStore) Save(ctx context.Context, snapshot paramstore.Snapshot) error {
	f.mu.Lock()
	f.saves++
	f.mu.Unlock()

	return f.MemoryStore.Save(ctx, snapshot)
}

func seededForest() paramstore.Snapshot {
	return paramstore.Snapshot{
		Families: map[string]paramstore.Entry{
			model.RandomForestName: {
				Params:    regtune.Params{"n_estimators": 10, "max_depth": 5, "min_samples_split": 2},
				Score:     0.7,
				UpdatedAt: time.Unix(100, 0),
			},
		},
	}
}

// reviews returns n rows of two features and an integer score in [3, 8]
// driven by the first feature.
func reviews(n int, seed int64) (regtune.FeatureMatrix, regtune.TargetVector) {
	rng := rand.New(rand.NewSource(seed))

	x := make(regtune.FeatureMatrix, n)
	y := make(regtune.TargetVector, n)

	for i := range x {
		a, b := rng.Float64()*6, rng.Float64()
		x[i] = []float64{a, b}
		y[i] = float64(3 + int(a))

		if y[i] > 8 {
			y[i] = 8
		}
	}

	return x, y
}

func strategy(t *testing.T, f model.Family) *counting {
	t.Helper()

	s, err := model.New(f)
	require.NoError(t, err)

	return &counting{Strategy: s}
}

func searchConfig() regtune.OptimizationConfig {
	cfg := regtune.DefaultConfig()
	cfg.InitialSamples = 3
	cfg.NumCandidates = 16
	cfg.Seed = 11

	return cfg
}

func newTuner(t *testing.T, s model.Strategy, opts ...Option) *Tuner {
	t.Helper()

	x, y := reviews(100, 1)

	opts = append([]Option{WithSearchConfig(searchConfig())}, opts...)

	return New(s, x[:80], y[:80], x[80:], y[80:], opts...)
}

func TestOptimizeInvalidBudget(t *testing.T) {
	tun := newTuner(t, strategy(t, model.XGBoost), WithStore(paramstore.NewMemoryStore(paramstore.Snapshot{})))

	for _, budget := range []int{0, -3} {
		_, err := tun.Optimize(context.Background(), budget, true)
		assert.ErrorIs(t, err, regtune.ErrInvalidBudget)
	}
}

func TestOptimizeCacheHitRunsNoTrial(t *testing.T) {
	cached := regtune.Params{"n_estimators": 7, "max_depth": 3, "learning_rate": 0.2}
	store := paramstore.NewMemoryStore(paramstore.Snapshot{
		Families: map[string]paramstore.Entry{
			model.XGBoostName: {Params: cached, Score: 0.8, UpdatedAt: time.Unix(100, 0)},
		},
	})

	s := strategy(t, model.XGBoost)
	tun := newTuner(t, s, WithStore(store))

	result, err := tun.Optimize(context.Background(), 50, true)
	require.NoError(t, err)

	assert.Zero(t, s.calls)
	assert.True(t, result.FromCache)
	assert.Zero(t, result.Trials)
	assert.Empty(t, result.StudyID)
	assert.Equal(t, cached, result.Params)
	assert.Equal(t, 0.8, result.Score)
	assert.Equal(t, []State{Idle, CacheCheck, CacheHit, Done}, result.Path)
}

func TestOptimizeBypassCacheRunsBudget(t *testing.T) {
	store := paramstore.NewMemoryStore(paramstore.Snapshot{
		Families: map[string]paramstore.Entry{
			model.XGBoostName:      {Params: regtune.Params{"n_estimators": 1, "max_depth": 1, "learning_rate": 0.1}},
			model.RandomForestName: {Params: regtune.Params{"n_estimators": 4}, Score: 0.5},
		},
	})

	s := strategy(t, model.XGBoost)
	tun := newTuner(t, s, WithStore(store))

	result, err := tun.Optimize(context.Background(), 6, false)
	require.NoError(t, err)

	assert.Equal(t, 6, s.calls)
	assert.Equal(t, 6, result.Trials)
	assert.False(t, result.FromCache)
	assert.NotEmpty(t, result.StudyID)
	assert.Equal(t, []State{Idle, CacheCheck, CacheMiss, Searching, Done}, result.Path)
	assert.True(t, s.SearchSpace().Contains(result.Params))

	for _, score := range s.scores {
		assert.GreaterOrEqual(t, result.Score, score)
	}

	// The search result replaced the stale entry and kept the other family.
	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	entry, ok := snap.Lookup(model.XGBoostName)
	require.True(t, ok)
	assert.Equal(t, result.Params, entry.Params)
	assert.Equal(t, result.Score, entry.Score)

	_, ok = snap.Lookup(model.RandomForestName)
	assert.True(t, ok)

	assert.Equal(t, snap, result.Cache)
}

func TestOptimizeSecondCallHitsCache(t *testing.T) {
	s := strategy(t, model.LightGBM)
	tun := newTuner(t, s, WithStore(paramstore.NewMemoryStore(paramstore.Snapshot{})))

	first, err := tun.Optimize(context.Background(), 4, true)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 4, s.calls)

	second, err := tun.Optimize(context.Background(), 4, true)
	require.NoError(t, err)

	third, err := tun.Optimize(context.Background(), 4, true)
	require.NoError(t, err)

	assert.Equal(t, 4, s.calls)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Params, second.Params)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, second.Params, third.Params)
	assert.Equal(t, second.Score, third.Score)
}

func TestOptimizeLinearIgnoresBudget(t *testing.T) {
	var scores []float64

	for _, budget := range []int{1, 10} {
		s := strategy(t, model.LinearRegression)
		tun := newTuner(t, s, WithStore(paramstore.NewMemoryStore(paramstore.Snapshot{})))

		result, err := tun.Optimize(context.Background(), budget, true)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Trials)
		assert.Empty(t, result.Params)
		assert.False(t, result.FromCache)

		scores = append(scores, result.Score)
	}

	assert.Equal(t, scores[0], scores[1])
}

func TestOptimizeRandomForestEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), paramstore.DefaultFilename)
	store := paramstore.NewFileStore(path)

	start := time.Now().Add(-time.Second)

	s := strategy(t, model.RandomForest)
	tun := newTuner(t, s, WithStore(store))

	result, err := tun.Optimize(context.Background(), 5, true)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Trials)

	for _, name := range []string{"n_estimators", "max_depth", "min_samples_split"} {
		param, ok := s.SearchSpace().Lookup(name)
		require.True(t, ok)
		assert.True(t, param.Contains(result.Params[name]), name)
	}

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	entry, ok := snap.Lookup(model.RandomForestName)
	require.True(t, ok)
	assert.False(t, entry.UpdatedAt.Before(start))
	assert.False(t, snap.LastUpdated.Before(start))
	assert.True(t, s.SearchSpace().Contains(entry.Params))

	// A fresh tuner reads the file back.
	again := newTuner(t, strategy(t, model.RandomForest), WithStore(store))

	cached, err := again.Optimize(context.Background(), 5, true)
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	assert.InDelta(t, result.Score, cached.Score, 1e-12)
}

func TestOptimizeStoreFailureIsNotFatal(t *testing.T) {
	reg := prometheus.NewRegistry()

	s := strategy(t, model.XGBoost)
	tun := newTuner(t, s, WithStore(brokenStore{}), WithRecorder(NewRecorder(reg)))

	result, err := tun.Optimize(context.Background(), 3, true)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Trials)
	assert.Equal(t, 1.0, testutil.ToFloat64(tun.recorder.cacheErrors.WithLabelValues("load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tun.recorder.cacheErrors.WithLabelValues("save")))
}

func TestOptimizeFailedLoadKeepsOtherFamilies(t *testing.T) {
	store := &flakyStore{MemoryStore: paramstore.NewMemoryStore(seededForest()), failLoads: 1}

	result, err := newTuner(t, strategy(t, model.LinearRegression), WithStore(store)).Optimize(context.Background(), 3, true)
	require.NoError(t, err)
	assert.False(t, result.FromCache)

	snap, err := store.MemoryStore.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{model.LinearRegressionName, model.RandomForestName}, snap.Names())
	assert.Equal(t, 0.7, snap.Families[model.RandomForestName].Score)
	assert.Equal(t, snap, result.Cache)
}

func TestOptimizeSkipsSaveWhenCacheUnreadable(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := &flakyStore{MemoryStore: paramstore.NewMemoryStore(seededForest()), failLoads: 2}

	tun := newTuner(t, strategy(t, model.LinearRegression), WithStore(store), WithRecorder(NewRecorder(reg)))

	result, err := tun.Optimize(context.Background(), 3, true)
	require.NoError(t, err)

	assert.Zero(t, store.saves)
	assert.Equal(t, 1.0, testutil.ToFloat64(tun.recorder.cacheErrors.WithLabelValues("save")))

	// The stored cache is untouched, the result still carries the new entry.
	snap, err := store.MemoryStore.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seededForest().Names(), snap.Names())

	_, ok := result.Cache.Lookup(model.RandomForestName)
	assert.False(t, ok)
	assert.Contains(t, result.Cache.Families, model.LinearRegressionName)
}

func TestOptimizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := paramstore.NewMemoryStore(paramstore.Snapshot{})
	tun := newTuner(t, strategy(t, model.XGBoost), WithStore(store))

	_, err := tun.Optimize(ctx, 5, true)
	assert.ErrorIs(t, err, context.Canceled)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Families)
}

func TestOptimizeUsesClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tun := newTuner(t, strategy(t, model.LinearRegression),
		WithStore(paramstore.NewMemoryStore(paramstore.Snapshot{})),
		WithClock(func() time.Time { return fixed }),
	)

	result, err := tun.Optimize(context.Background(), 1, false)
	require.NoError(t, err)

	assert.Equal(t, fixed, result.Cache.LastUpdated)
	assert.Equal(t, fixed, result.Cache.Families[model.LinearRegressionName].UpdatedAt)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "cache_hit", CacheHit.String())
	assert.Equal(t, "searching", Searching.String())
	assert.Equal(t, "State(42)", State(42).String())
}
