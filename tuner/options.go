package tuner

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thalesfsp/regtune"
	"github.com/thalesfsp/regtune/paramstore"
)

// Option configures a Tuner.
type Option func(*Tuner)

// WithStore sets where cached hyperparameters are loaded from and saved to.
func WithStore(store paramstore.Store) Option {
	return func(t *Tuner) {
		if store != nil {
			t.store = store
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(t *Tuner) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithRecorder sets the Prometheus recorder.
func WithRecorder(r *Recorder) Option {
	return func(t *Tuner) {
		t.recorder = r
	}
}

// WithSearchConfig sets the search configuration. Its Trials field is
// replaced by the budget passed to Optimize.
func WithSearchConfig(cfg regtune.OptimizationConfig) Option {
	return func(t *Tuner) {
		t.search = cfg
	}
}

// WithClock sets the time source used to stamp cache entries.
func WithClock(now func() time.Time) Option {
	return func(t *Tuner) {
		if now != nil {
			t.now = now
		}
	}
}
