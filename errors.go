package regtune

import (
	"errors"
	"fmt"
)

//////
// Error taxonomy.
//////

var (
	// ErrDimensionMismatch is returned when paired sequences differ in length
	// or a matrix is ragged. Never recovered.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmptyInput is returned by metrics and trainers fed zero rows.
	ErrEmptyInput = errors.New("empty input")

	// ErrNonFiniteValue is returned when an input holds NaN or Inf.
	ErrNonFiniteValue = errors.New("non-finite value")

	// ErrDegenerateTarget is returned by R2Score when the true values have
	// zero variance.
	ErrDegenerateTarget = errors.New("degenerate target: zero variance")

	// ErrTrainingFailure is returned when a fit cannot produce a usable model.
	ErrTrainingFailure = errors.New("training failure")

	// ErrSearchFailure is returned when no trial in the budget succeeded.
	ErrSearchFailure = errors.New("search failure")

	// ErrCachePersistence marks a read or write failure against the
	// hyperparameter cache. Callers log it and carry on.
	ErrCachePersistence = errors.New("cache persistence failure")

	// ErrUnknownParameter is returned for hyperparameter names a model family
	// does not recognize.
	ErrUnknownParameter = errors.New("unknown hyperparameter")

	// ErrInvalidParameter is returned when a hyperparameter value has the
	// wrong type or lies outside its domain.
	ErrInvalidParameter = errors.New("invalid hyperparameter value")

	// ErrInvalidSearchSpace is returned by SearchSpace.Validate.
	ErrInvalidSearchSpace = errors.New("invalid search space")

	// ErrInvalidBudget is returned for a non-positive trial budget.
	ErrInvalidBudget = errors.New("trial budget must be positive")

	// ErrUnknownModel is returned when a model family name can't be resolved.
	ErrUnknownModel = errors.New("unknown model family")
)

// Error attaches the failing operation and model family to an underlying
// error. errors.Is and errors.As see through it.
type Error struct {
	// Op is the operation that failed, e.g. "train" or "cache.load".
	Op string

	// Family is the model family identifier, if any.
	Family string

	// Err is the wrapped cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Family == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Family, e.Err)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with operation and family context. Returns nil if err
// is nil.
func NewError(op, family string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Op: op, Family: family, Err: err}
}

// TrainingFailure wraps cause so that it matches both ErrTrainingFailure and
// cause under errors.Is.
func TrainingFailure(cause error) error {
	if cause == nil {
		return ErrTrainingFailure
	}

	if errors.Is(cause, ErrTrainingFailure) {
		return cause
	}

	return fmt.Errorf("%w: %w", ErrTrainingFailure, cause)
}
