package regtune

import (
	"fmt"
	"math"
)

//////
// Const, vars, types.
//////

// Kind is the domain type of a hyperparameter.
type Kind int

const (
	// KindInt is an inclusive integer range.
	KindInt Kind = iota

	// KindFloat is a continuous range, sampled linearly or logarithmically.
	KindFloat

	// KindCategorical is a fixed set of string choices.
	KindCategorical
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindCategorical:
		return "categorical"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Param declares one tunable hyperparameter and its domain.
type Param struct {
	// Name is the key the value is stored under in Params.
	Name string

	// Kind selects how Low, High, Log and Choices are interpreted.
	Kind Kind

	// Low and High are the inclusive bounds of numeric kinds.
	Low, High float64

	// Log samples a float range with logarithmic density. Low must be > 0.
	Log bool

	// Choices lists the values of a categorical parameter.
	Choices []string
}

// SearchSpace is the ordered set of a model family's tunable parameters.
type SearchSpace []Param

//////
// Factory.
//////

// IntParam declares an integer parameter over the inclusive range r.
func IntParam(name string, r ParameterRange[int]) Param {
	return Param{Name: name, Kind: KindInt, Low: float64(r.Min), High: float64(r.Max)}
}

// FloatParam declares a float parameter sampled uniformly over r.
func FloatParam(name string, r ParameterRange[float64]) Param {
	return Param{Name: name, Kind: KindFloat, Low: r.Min, High: r.Max}
}

// LogFloatParam declares a float parameter sampled uniformly in log space.
func LogFloatParam(name string, r ParameterRange[float64]) Param {
	return Param{Name: name, Kind: KindFloat, Low: r.Min, High: r.Max, Log: true}
}

// CategoricalParam declares a parameter taking one of choices.
func CategoricalParam(name string, choices ...string) Param {
	return Param{Name: name, Kind: KindCategorical, Choices: choices}
}

//////
// Methods.
//////

// Validate checks the declaration is self-consistent.
func (p Param) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: parameter without a name", ErrInvalidSearchSpace)
	}

	switch p.Kind {
	case KindInt, KindFloat:
		if math.IsNaN(p.Low) || math.IsNaN(p.High) || p.Low > p.High {
			return fmt.Errorf("%w: %s has bounds [%v, %v]", ErrInvalidSearchSpace, p.Name, p.Low, p.High)
		}

		if p.Kind == KindInt && (p.Low != math.Trunc(p.Low) || p.High != math.Trunc(p.High)) {
			return fmt.Errorf("%w: %s has non-integer bounds", ErrInvalidSearchSpace, p.Name)
		}

		if p.Log && p.Low <= 0 {
			return fmt.Errorf("%w: %s is logarithmic with lower bound %v", ErrInvalidSearchSpace, p.Name, p.Low)
		}
	case KindCategorical:
		if len(p.Choices) == 0 {
			return fmt.Errorf("%w: %s has no choices", ErrInvalidSearchSpace, p.Name)
		}
	default:
		return fmt.Errorf("%w: %s has unknown kind %v", ErrInvalidSearchSpace, p.Name, p.Kind)
	}

	return nil
}

// Decode maps a coordinate u in [0, 1] onto the parameter's domain. Integers
// come back as int, floats as float64 and categories as string.
func (p Param) Decode(u float64) any {
	u = clamp(u, 0, 1)

	switch p.Kind {
	case KindInt:
		// Each integer owns an equal slice of the unit interval.
		width := p.High - p.Low + 1
		v := p.Low + math.Floor(u*width)

		return int(clamp(v, p.Low, p.High))
	case KindFloat:
		if p.Log {
			lo, hi := math.Log(p.Low), math.Log(p.High)

			return clamp(math.Exp(lo+u*(hi-lo)), p.Low, p.High)
		}

		return clamp(p.Low+u*(p.High-p.Low), p.Low, p.High)
	default:
		idx := int(math.Floor(u * float64(len(p.Choices))))
		if idx >= len(p.Choices) {
			idx = len(p.Choices) - 1
		}

		return p.Choices[idx]
	}
}

// Contains reports whether v is a legal value for the parameter.
func (p Param) Contains(v any) bool {
	if p.Kind == KindCategorical {
		s, ok := v.(string)
		if !ok {
			return false
		}

		for _, c := range p.Choices {
			if c == s {
				return true
			}
		}

		return false
	}

	f, ok := toFloat(v)
	if !ok || f < p.Low || f > p.High {
		return false
	}

	return p.Kind != KindInt || f == math.Trunc(f)
}

// Validate checks every parameter and that names are unique.
func (s SearchSpace) Validate() error {
	seen := make(map[string]struct{}, len(s))

	for _, p := range s {
		if err := p.Validate(); err != nil {
			return err
		}

		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate parameter %s", ErrInvalidSearchSpace, p.Name)
		}

		seen[p.Name] = struct{}{}
	}

	return nil
}

// Lookup finds a parameter by name.
func (s SearchSpace) Lookup(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}

	return Param{}, false
}

// Names returns the parameter names in declaration order.
func (s SearchSpace) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}

	return names
}

// Decode turns a point of the unit hypercube into a Params value.
func (s SearchSpace) Decode(point []float64) Params {
	params := make(Params, len(s))
	for i, p := range s {
		params[p.Name] = p.Decode(point[i])
	}

	return params
}

// Contains reports whether params holds a legal value for every parameter
// of the space and nothing else.
func (s SearchSpace) Contains(params Params) bool {
	if len(params) != len(s) {
		return false
	}

	for _, p := range s {
		v, ok := params[p.Name]
		if !ok || !p.Contains(v) {
			return false
		}
	}

	return true
}
