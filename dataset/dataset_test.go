package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thalesfsp/regtune"
)

const orders = `order_id,price,freight_value,status,product_weight_g,review_score
a1,10.5,2.0,delivered,500,5
a2,20.0,3.5,delivered,,4
a3,10.5,2.0,delivered,500,5
a4,7.25,1.0,shipped,300,
a5,15.0,NaN,delivered,800,3
a6,30.0,4.0,canceled,1200,1
`

func TestLoadCleansRows(t *testing.T) {
	frame, err := Load(strings.NewReader(orders), Options{Target: "review_score"})
	require.NoError(t, err)

	assert.Equal(t, []string{"price", "freight_value", "product_weight_g"}, frame.Columns)
	assert.Equal(t, "review_score", frame.Target)

	assert.Equal(t, regtune.FeatureMatrix{
		{10.5, 2.0, 500},
		{30.0, 4.0, 1200},
	}, frame.X)
	assert.Equal(t, regtune.TargetVector{5, 1}, frame.Y)

	assert.Equal(t, 6, frame.Stats.Read)
	assert.Equal(t, []string{"order_id", "status"}, frame.Stats.DroppedColumns)
	assert.Equal(t, 3, frame.Stats.Incomplete)
	assert.Equal(t, 1, frame.Stats.Duplicates)
	assert.Zero(t, frame.Stats.Filled)
}

func TestLoadFillsMedian(t *testing.T) {
	frame, err := Load(strings.NewReader(orders), Options{
		Target:      "review_score",
		Drop:        []string{"freight_value"},
		FillMissing: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"price", "product_weight_g"}, frame.Columns)

	// Median of 500, 500, 300, 800, 1200 is 500. Row a4 has no target.
	assert.Equal(t, regtune.FeatureMatrix{
		{10.5, 500},
		{20.0, 500},
		{15.0, 800},
		{30.0, 1200},
	}, frame.X)
	assert.Equal(t, regtune.TargetVector{5, 4, 3, 1}, frame.Y)
	assert.Equal(t, 1, frame.Stats.Filled)
	assert.Equal(t, 1, frame.Stats.Duplicates)
	assert.Equal(t, 1, frame.Stats.Incomplete)
}

func TestLoadDelimiter(t *testing.T) {
	data := "fixed acidity;alcohol;quality\n7.4;9.4;5\n7.8;9.8;6\n"

	frame, err := Load(strings.NewReader(data), Options{Delimiter: ';', Target: "quality"})
	require.NoError(t, err)

	assert.Equal(t, []string{"fixed acidity", "alcohol"}, frame.Columns)
	assert.Len(t, frame.X, 2)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(strings.NewReader(orders), Options{Target: "quality"})
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = Load(strings.NewReader(orders), Options{Target: "status"})
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = Load(strings.NewReader("name,score\nx,1\ny,2\n"), Options{Target: "score"})
	assert.ErrorIs(t, err, ErrNoFeatures)

	_, err = Load(strings.NewReader("a,score\n"), Options{Target: "score"})
	assert.ErrorIs(t, err, regtune.ErrEmptyInput)

	_, err = Load(strings.NewReader("a,score\n,1\n2,\n"), Options{Target: "score"})
	assert.ErrorIs(t, err, regtune.ErrEmptyInput)

	_, err = Load(strings.NewReader("a,\"score\n1,2\n"), Options{Target: "score"})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(path, []byte(orders), 0o600))

	frame, err := LoadFile(path, Options{Target: "review_score"})
	require.NoError(t, err)
	assert.Len(t, frame.Y, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"), Options{Target: "review_score"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
