package pipeline

import (
	"context"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thalesfsp/regtune"
	"github.com/thalesfsp/regtune/config"
	"github.com/thalesfsp/regtune/dataset"
	"github.com/thalesfsp/regtune/model"
	"github.com/thalesfsp/regtune/paramstore"
	"github.com/thalesfsp/regtune/tuner"
)

// linearSplit returns rows with y = 1 + 2·x0 - 3·x1.
func linearSplit(t *testing.T) dataset.Split {
	t.Helper()

	rng := rand.New(rand.NewSource(3))
	frame := &dataset.Frame{Columns: []string{"a", "b"}, Target: "y"}

	for i := 0; i < 60; i++ {
		a, b := rng.Float64()*10, rng.Float64()*5
		frame.X = append(frame.X, []float64{a, b})
		frame.Y = append(frame.Y, 1+2*a-3*b)
	}

	split, err := dataset.TrainTestSplit(frame, 0.25, 42, false)
	require.NoError(t, err)

	return split
}

func searchOptions() Option {
	cfg := regtune.DefaultConfig()
	cfg.InitialSamples = 2
	cfg.NumCandidates = 8
	cfg.Seed = 5

	return WithTuning(tuner.WithSearchConfig(cfg))
}

func TestTrainUnknownModel(t *testing.T) {
	_, err := Train(context.Background(), linearSplit(t), config.Model{Name: "svm"})
	assert.ErrorIs(t, err, regtune.ErrUnknownModel)
}

func TestTrainDefaults(t *testing.T) {
	logger, hook := test.NewNullLogger()

	outcome, err := Train(context.Background(), linearSplit(t), config.Model{Name: "LinearRegressionModel"}, WithLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, model.LinearRegressionName, outcome.Family)
	assert.Nil(t, outcome.Tuning)
	assert.Empty(t, outcome.Params)
	assert.InDelta(t, 1.0, outcome.Report.R2, 1e-9)
	assert.InDelta(t, 0.0, outcome.Report.RMSE, 1e-6)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Model trained", entry.Message)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, model.LinearRegressionName, entry.Data["family"])
}

func TestTrainFineTuning(t *testing.T) {
	store := paramstore.NewMemoryStore(paramstore.Snapshot{})

	cfg := config.Model{Name: "xgb", FineTuning: true, UseCachedParams: true, TrialBudget: 3}

	outcome, err := Train(context.Background(), linearSplit(t), cfg, searchOptions(), WithTuning(tuner.WithStore(store)))
	require.NoError(t, err)

	require.NotNil(t, outcome.Tuning)
	assert.Equal(t, 3, outcome.Tuning.Trials)
	assert.False(t, outcome.Tuning.FromCache)

	for name, value := range outcome.Tuning.Params {
		assert.Equal(t, value, outcome.Params[name], name)
	}

	// Keys outside the search space come from the defaults.
	assert.Equal(t, 1.0, outcome.Params["reg_lambda"])

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	_, ok := snap.Lookup(model.XGBoostName)
	assert.True(t, ok)
}

func TestTrainUsesCachedParams(t *testing.T) {
	cached := regtune.Params{"n_estimators": 3.0, "max_depth": 4.0, "min_samples_split": 2.0}
	store := paramstore.NewMemoryStore(paramstore.Snapshot{
		Families: map[string]paramstore.Entry{
			model.RandomForestName: {Params: cached, Score: 0.9},
		},
	})

	cfg := config.Model{Name: "RandomForestModel", FineTuning: true, UseCachedParams: true, TrialBudget: 50}

	outcome, err := Train(context.Background(), linearSplit(t), cfg, WithTuning(tuner.WithStore(store)))
	require.NoError(t, err)

	require.NotNil(t, outcome.Tuning)
	assert.True(t, outcome.Tuning.FromCache)
	assert.Zero(t, outcome.Tuning.Trials)
	assert.Equal(t, 3.0, outcome.Params["n_estimators"])

	forest, ok := outcome.Artifact.(*model.ForestModel)
	require.True(t, ok)
	assert.Len(t, forest.Trees, 3)
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := config.Model{Name: "lightgbm", FineTuning: true, TrialBudget: 5}

	_, err := Train(ctx, linearSplit(t), cfg, searchOptions(), WithTuning(tuner.WithStore(paramstore.NewMemoryStore(paramstore.Snapshot{}))))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchConfig(t *testing.T) {
	cfg := config.Default().Search
	cfg.Workers = 3
	cfg.Seed = 9
	cfg.Acquisition = "ei"

	out := SearchConfig(cfg)

	assert.Equal(t, 10, out.InitialSamples)
	assert.Equal(t, 64, out.NumCandidates)
	assert.Equal(t, 3, out.Workers)
	assert.Equal(t, int64(9), out.Seed)
	assert.Equal(t, 2.0, out.AcqParams.Beta)
	assert.Equal(t, 0.25, out.KernelWidth)
	assert.NotNil(t, out.AcquisitionFunc)
}
