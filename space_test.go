package regtune

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamDecodeBounds(t *testing.T) {
	depth := IntParam("max_depth", ParameterRange[int]{Min: 1, Max: 30})

	assert.Equal(t, 1, depth.Decode(0))
	assert.Equal(t, 30, depth.Decode(1))
	assert.Equal(t, 30, depth.Decode(1.5))
	assert.Equal(t, 1, depth.Decode(-2))

	// Every integer owns an equal share of the unit interval.
	seen := map[int]bool{}
	for i := 0; i < 300; i++ {
		seen[depth.Decode(float64(i)/300).(int)] = true
	}

	assert.Len(t, seen, 30)

	lr := LogFloatParam("learning_rate", ParameterRange[float64]{Min: 1e-7, Max: 10})
	assert.InDelta(t, 1e-7, lr.Decode(0).(float64), 1e-15)
	assert.InDelta(t, 10, lr.Decode(1).(float64), 1e-9)
	assert.InDelta(t, math.Sqrt(1e-7*10), lr.Decode(0.5).(float64), 1e-9)

	linear := FloatParam("learning_rate", ParameterRange[float64]{Min: 0.01, Max: 0.99})
	assert.InDelta(t, 0.5, linear.Decode(0.5).(float64), 1e-12)

	booster := CategoricalParam("booster", "gbtree", "dart")
	assert.Equal(t, "gbtree", booster.Decode(0.2))
	assert.Equal(t, "dart", booster.Decode(1))
}

func TestParamContains(t *testing.T) {
	depth := IntParam("max_depth", ParameterRange[int]{Min: 1, Max: 20})

	assert.True(t, depth.Contains(7))
	assert.True(t, depth.Contains(7.0))
	assert.True(t, depth.Contains(json.Number("7")))
	assert.False(t, depth.Contains(7.5))
	assert.False(t, depth.Contains(21))
	assert.False(t, depth.Contains("7"))

	booster := CategoricalParam("booster", "gbtree", "dart")
	assert.True(t, booster.Contains("dart"))
	assert.False(t, booster.Contains("gblinear"))
	assert.False(t, booster.Contains(1))
}

func TestSearchSpaceValidate(t *testing.T) {
	valid := SearchSpace{
		IntParam("n_estimators", ParameterRange[int]{Min: 1, Max: 200}),
		LogFloatParam("learning_rate", ParameterRange[float64]{Min: 1e-7, Max: 10}),
		CategoricalParam("booster", "gbtree"),
	}
	require.NoError(t, valid.Validate())
	require.NoError(t, SearchSpace(nil).Validate())

	invalid := map[string]SearchSpace{
		"reversed":  {IntParam("x", ParameterRange[int]{Min: 3, Max: 1})},
		"log zero":  {LogFloatParam("x", ParameterRange[float64]{Min: 0, Max: 1})},
		"no name":   {FloatParam("", ParameterRange[float64]{Min: 0, Max: 1})},
		"choices":   {CategoricalParam("x")},
		"duplicate": {IntParam("x", ParameterRange[int]{Min: 1, Max: 2}), IntParam("x", ParameterRange[int]{Min: 1, Max: 2})},
		"fraction":  {{Name: "x", Kind: KindInt, Low: 0.5, High: 2}},
		"kind":      {{Name: "x", Kind: Kind(9)}},
	}

	for name, space := range invalid {
		assert.ErrorIs(t, space.Validate(), ErrInvalidSearchSpace, name)
	}
}

func TestSearchSpaceDecodeAndContains(t *testing.T) {
	space := SearchSpace{
		IntParam("n_estimators", ParameterRange[int]{Min: 1, Max: 200}),
		FloatParam("learning_rate", ParameterRange[float64]{Min: 0.01, Max: 0.99}),
	}

	params := space.Decode([]float64{0.999, 0})
	assert.Equal(t, Params{"n_estimators": 200, "learning_rate": 0.01}, params)
	assert.True(t, space.Contains(params))

	params["extra"] = 1
	assert.False(t, space.Contains(params))

	assert.Equal(t, []string{"n_estimators", "learning_rate"}, space.Names())

	_, ok := space.Lookup("max_depth")
	assert.False(t, ok)
}

func TestTrialAccessors(t *testing.T) {
	space := SearchSpace{
		IntParam("max_depth", ParameterRange[int]{Min: 1, Max: 20}),
		FloatParam("learning_rate", ParameterRange[float64]{Min: 0.01, Max: 0.99}),
		CategoricalParam("booster", "gbtree", "dart"),
	}

	trial := FixedTrial(space, Params{"max_depth": 4.0, "learning_rate": 0.3, "booster": "dart"})

	depth, err := trial.Int("max_depth")
	require.NoError(t, err)
	assert.Equal(t, 4, depth)

	lr, err := trial.Float("learning_rate")
	require.NoError(t, err)
	assert.Equal(t, 0.3, lr)

	booster, err := trial.Categorical("booster")
	require.NoError(t, err)
	assert.Equal(t, "dart", booster)

	_, err = trial.Int("n_estimators")
	assert.ErrorIs(t, err, ErrUnknownParameter)

	_, err = trial.Float("max_depth")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	// Params hands out copies.
	trial.Params()["max_depth"] = 99
	depth, _ = trial.Int("max_depth")
	assert.Equal(t, 4, depth)

	assert.Equal(t, "complete", TrialComplete.String())
	assert.NotEmpty(t, trial.ID)
}
