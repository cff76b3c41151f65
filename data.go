package regtune

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

//////
// Const, vars, types.
//////

// FeatureMatrix is an ordered sequence of equal-length numeric rows. Column
// order is significant and must be the same at training and inference time.
// The matrix is owned by the caller and never mutated by this module.
type FeatureMatrix [][]float64

// TargetVector holds one scalar label per row of the paired FeatureMatrix.
type TargetVector []float64

// Params is a HyperparameterSet: parameter name to numeric or categorical
// value. Values decoded from JSON or YAML come back as float64 (or
// json.Number), so the typed getters accept any numeric representation.
type Params map[string]any

//////
// FeatureMatrix.
//////

// Rows returns the number of rows.
func (m FeatureMatrix) Rows() int {
	return len(m)
}

// Cols returns the width of the first row, or 0 for an empty matrix.
func (m FeatureMatrix) Cols() int {
	if len(m) == 0 {
		return 0
	}

	return len(m[0])
}

// Validate checks that the matrix is non-empty, rectangular and finite.
func (m FeatureMatrix) Validate() error {
	if len(m) == 0 || len(m[0]) == 0 {
		return ErrEmptyInput
	}

	width := len(m[0])

	for i, row := range m {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), width)
		}

		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d column %d", ErrNonFiniteValue, i, j)
			}
		}
	}

	return nil
}

// Column copies column j into a new slice.
func (m FeatureMatrix) Column(j int) []float64 {
	col := make([]float64, len(m))
	for i, row := range m {
		col[i] = row[j]
	}

	return col
}

// CheckPair validates a feature matrix together with its labels.
func CheckPair(x FeatureMatrix, y TargetVector) error {
	if err := x.Validate(); err != nil {
		return err
	}

	if len(y) != x.Rows() {
		return fmt.Errorf("%w: %d rows but %d labels", ErrDimensionMismatch, x.Rows(), len(y))
	}

	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: label %d", ErrNonFiniteValue, i)
		}
	}

	return nil
}

//////
// Params.
//////

// Clone returns a shallow copy. A nil receiver yields an empty, non-nil map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}

// Merge returns a copy of p overlaid with over.
func (p Params) Merge(over Params) Params {
	out := p.Clone()
	for k, v := range over {
		out[k] = v
	}

	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Int returns name as an int, or def when absent. Float values must be
// integral.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}

	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s=%v is not an integer", ErrInvalidParameter, name, v)
	}

	return int(f), nil
}

// Float returns name as a float64, or def when absent.
func (p Params) Float(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}

	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s=%v is not numeric", ErrInvalidParameter, name, v)
	}

	return f, nil
}

// String returns name as a string, or def when absent.
func (p Params) String(name string, def string) (string, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s=%v is not a string", ErrInvalidParameter, name, v)
	}

	return s, nil
}

// toFloat converts the numeric representations produced by Go code and by
// JSON/YAML decoders to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
