package regtune

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrialState tracks a trial through its evaluation.
type TrialState int

const (
	// TrialRunning is set while the objective is being evaluated.
	TrialRunning TrialState = iota

	// TrialComplete means the objective returned a finite score.
	TrialComplete

	// TrialFailed means the objective returned an error or a non-finite
	// score. Failed trials never become the best trial.
	TrialFailed
)

// String implements fmt.Stringer.
func (s TrialState) String() string {
	switch s {
	case TrialRunning:
		return "running"
	case TrialComplete:
		return "complete"
	case TrialFailed:
		return "failed"
	default:
		return fmt.Sprintf("TrialState(%d)", int(s))
	}
}

// Trial is one proposal-evaluation unit. It supplies a candidate value for
// every parameter of the search space and records the score the objective
// returned for it.
type Trial struct {
	// Number is the zero-based position of the trial in its study.
	Number int

	// ID uniquely identifies the trial across studies.
	ID string

	// State is the evaluation state.
	State TrialState

	// Score is the objective value (higher is better). Only meaningful when
	// State is TrialComplete.
	Score float64

	// Err is the objective error of a failed trial.
	Err error

	// Duration is the wall time spent in the objective.
	Duration time.Duration

	space  SearchSpace
	params Params
	point  []float64
}

// FixedTrial builds a trial that proposes exactly params. Useful to call a
// model's Optimize outside of a study.
func FixedTrial(space SearchSpace, params Params) *Trial {
	return &Trial{
		ID:     uuid.NewString(),
		space:  space,
		params: params.Clone(),
	}
}

func newTrial(number int, space SearchSpace, point []float64) *Trial {
	return &Trial{
		Number: number,
		ID:     uuid.NewString(),
		State:  TrialRunning,
		space:  space,
		params: space.Decode(point),
		point:  point,
	}
}

// Params returns a copy of the proposed hyperparameters.
func (t *Trial) Params() Params {
	return t.params.Clone()
}

// Int returns the proposed value of an integer parameter.
func (t *Trial) Int(name string) (int, error) {
	if err := t.declared(name, KindInt); err != nil {
		return 0, err
	}

	return t.params.Int(name, 0)
}

// Float returns the proposed value of a float parameter.
func (t *Trial) Float(name string) (float64, error) {
	if err := t.declared(name, KindFloat); err != nil {
		return 0, err
	}

	return t.params.Float(name, 0)
}

// Categorical returns the proposed value of a categorical parameter.
func (t *Trial) Categorical(name string) (string, error) {
	if err := t.declared(name, KindCategorical); err != nil {
		return "", err
	}

	return t.params.String(name, "")
}

func (t *Trial) declared(name string, kind Kind) error {
	p, ok := t.space.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s is not part of the search space", ErrUnknownParameter, name)
	}

	if p.Kind != kind {
		return fmt.Errorf("%w: %s is %v, not %v", ErrInvalidParameter, name, p.Kind, kind)
	}

	return nil
}
