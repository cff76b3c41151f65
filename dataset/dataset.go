// Package dataset loads tabular training data from CSV and prepares it for
// the model families: only numeric columns are kept, incomplete rows are
// dropped or filled, duplicates are removed and the rows are split into
// training and test sets.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/thalesfsp/regtune"
)

//////
// Const, vars, types.
//////

var (
	// ErrNoTarget is returned when the target column is absent or not
	// numeric.
	ErrNoTarget = errors.New("target column not found")

	// ErrNoFeatures is returned when no numeric feature column remains.
	ErrNoFeatures = errors.New("no numeric feature column")
)

// missing lists the cell values read as missing, lower-cased.
var missing = map[string]bool{
	"":     true,
	"na":   true,
	"nan":  true,
	"n/a":  true,
	"null": true,
	"none": true,
}

// Options controls Load.
type Options struct {
	// Delimiter separates fields. Defaults to ','.
	Delimiter rune

	// Target is the label column.
	Target string

	// Drop lists columns removed before the numeric check.
	Drop []string

	// FillMissing replaces missing feature values with the column median.
	// Rows missing the target are dropped regardless.
	FillMissing bool
}

// Stats describes what cleaning removed.
type Stats struct {
	// Read is the number of data rows in the input.
	Read int

	// DroppedColumns lists the non-numeric columns removed.
	DroppedColumns []string

	// Incomplete is the number of rows dropped for missing values.
	Incomplete int

	// Filled is the number of feature cells filled with a median.
	Filled int

	// Duplicates is the number of duplicate rows removed.
	Duplicates int
}

// Frame is a cleaned dataset.
type Frame struct {
	// Columns are the feature names, in matrix column order.
	Columns []string

	// Target is the label column name.
	Target string

	X regtune.FeatureMatrix
	Y regtune.TargetVector

	Stats Stats
}

//////
// Exported functionalities.
//////

// LoadFile opens path and calls Load.
func LoadFile(path string, opts Options) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return Load(f, opts)
}

// Load reads a CSV document with a header row.
//
// Cleaning, in order:
// - Columns listed in Options.Drop are removed
// - Columns holding any non-numeric, non-missing value are removed
// - Rows missing the target are dropped
// - Rows missing a feature are dropped, or filled with the column median
// when Options.FillMissing is set
// - Exact duplicate rows are removed, keeping the first occurrence
func Load(r io.Reader, opts Options) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("read csv: %w: no data rows", regtune.ErrEmptyInput)
	}

	header := records[0]
	rows := records[1:]

	cells, numeric := parse(header, rows)

	targetIdx := -1
	features := make([]int, 0, len(header))
	stats := Stats{Read: len(rows)}

	for j, name := range header {
		name = strings.TrimSpace(name)

		switch {
		case contains(opts.Drop, name):
		case !numeric[j]:
			if name != opts.Target {
				stats.DroppedColumns = append(stats.DroppedColumns, name)
			}
		case name == opts.Target:
			targetIdx = j
		default:
			features = append(features, j)
		}
	}

	if targetIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoTarget, opts.Target)
	}

	if len(features) == 0 {
		return nil, ErrNoFeatures
	}

	frame := &Frame{Target: opts.Target}
	for _, j := range features {
		frame.Columns = append(frame.Columns, strings.TrimSpace(header[j]))
	}

	var medians []float64
	if opts.FillMissing {
		medians = make([]float64, len(features))
		for k, j := range features {
			medians[k] = median(cells, j)
		}
	}

	seen := make(map[string]bool, len(cells))

	for _, row := range cells {
		label := row[targetIdx]
		if math.IsNaN(label) {
			stats.Incomplete++
			continue
		}

		values := make([]float64, len(features))
		complete := true

		for k, j := range features {
			v := row[j]

			if math.IsNaN(v) {
				if medians == nil || math.IsNaN(medians[k]) {
					complete = false
					break
				}

				v = medians[k]
				stats.Filled++
			}

			values[k] = v
		}

		if !complete {
			stats.Incomplete++
			continue
		}

		key := rowKey(values, label)
		if seen[key] {
			stats.Duplicates++
			continue
		}

		seen[key] = true

		frame.X = append(frame.X, values)
		frame.Y = append(frame.Y, label)
	}

	if len(frame.X) == 0 {
		return nil, fmt.Errorf("clean dataset: %w: every row was dropped", regtune.ErrEmptyInput)
	}

	frame.Stats = stats

	return frame, nil
}

//////
// Helper functions.
//////

// parse converts every cell to a float, NaN for missing or unparseable
// values, and reports which columns are numeric. A column is numeric when
// every non-missing value parses and at least one value is present.
func parse(header []string, rows [][]string) ([][]float64, []bool) {
	numeric := make([]bool, len(header))
	present := make([]bool, len(header))

	for j := range numeric {
		numeric[j] = true
	}

	cells := make([][]float64, len(rows))

	for i, row := range rows {
		cells[i] = make([]float64, len(header))

		for j := range header {
			cells[i][j] = math.NaN()

			if j >= len(row) {
				continue
			}

			raw := strings.TrimSpace(row[j])
			if missing[strings.ToLower(raw)] {
				continue
			}

			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
				numeric[j] = false
				continue
			}

			present[j] = true
			cells[i][j] = v
		}
	}

	for j := range numeric {
		numeric[j] = numeric[j] && present[j]
	}

	return cells, numeric
}

// median returns the median of the non-missing values of column j, averaging
// the two middle values of an even count. NaN when the column is empty.
func median(cells [][]float64, j int) float64 {
	values := make([]float64, 0, len(cells))

	for _, row := range cells {
		if !math.IsNaN(row[j]) {
			values = append(values, row[j])
		}
	}

	if len(values) == 0 {
		return math.NaN()
	}

	sort.Float64s(values)

	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}

	return (values[mid-1] + values[mid]) / 2
}

func rowKey(values []float64, label float64) string {
	var b strings.Builder

	for _, v := range values {
		b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
		b.WriteByte(',')
	}

	b.WriteString(strconv.FormatUint(math.Float64bits(label), 16))

	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}

	return false
}
