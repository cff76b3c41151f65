package tuner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exports tuner activity as Prometheus metrics. A nil *Recorder
// records nothing.
type Recorder struct {
	trials         *prometheus.CounterVec
	trialScore     *prometheus.HistogramVec
	bestScore      *prometheus.GaugeVec
	searchDuration *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	cacheErrors    *prometheus.CounterVec
}

// NewRecorder registers the tuner metrics on reg. A nil reg leaves them
// unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		trials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regtune_trials_total",
				Help: "Total number of search trials by outcome",
			},
			[]string{"family", "state"},
		),
		trialScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regtune_trial_score",
				Help:    "Validation R² of completed trials",
				Buckets: prometheus.LinearBuckets(-1, 0.25, 9),
			},
			[]string{"family"},
		),
		bestScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regtune_best_score",
				Help: "Score of the hyperparameters returned by the last optimization",
			},
			[]string{"family"},
		),
		searchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regtune_search_duration_seconds",
				Help:    "Wall time of a full hyperparameter search",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
			[]string{"family"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regtune_cache_lookups_total",
				Help: "Total number of cache lookups by result",
			},
			[]string{"family", "result"},
		),
		cacheErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regtune_cache_errors_total",
				Help: "Total number of cache load or save failures",
			},
			[]string{"operation"},
		),
	}
}

// RecordTrial records one finished trial.
func (r *Recorder) RecordTrial(family, state string, score float64, completed bool) {
	if r == nil {
		return
	}

	r.trials.WithLabelValues(family, state).Inc()

	if completed {
		r.trialScore.WithLabelValues(family).Observe(score)
	}
}

// RecordBest records the score the tuner returned.
func (r *Recorder) RecordBest(family string, score float64) {
	if r == nil {
		return
	}

	r.bestScore.WithLabelValues(family).Set(score)
}

// RecordSearch records the duration of a search.
func (r *Recorder) RecordSearch(family string, d time.Duration) {
	if r == nil {
		return
	}

	r.searchDuration.WithLabelValues(family).Observe(d.Seconds())
}

// RecordCacheLookup records a hit or a miss.
func (r *Recorder) RecordCacheLookup(family string, hit bool) {
	if r == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	r.cacheLookups.WithLabelValues(family, result).Inc()
}

// RecordCacheError records a failed load or save.
func (r *Recorder) RecordCacheError(op string) {
	if r == nil {
		return
	}

	r.cacheErrors.WithLabelValues(op).Inc()
}
