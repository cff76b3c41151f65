package tuner

import "fmt"

// State is a step of the tuner state machine:
//
//	Idle → CacheCheck → CacheHit → Done
//	Idle → CacheCheck → CacheMiss → Searching → Done
type State int

const (
	// Idle is the state before Optimize starts.
	Idle State = iota

	// CacheCheck loads the snapshot and looks up the family.
	CacheCheck

	// CacheHit means cached hyperparameters are returned as is.
	CacheHit

	// CacheMiss means the family is not cached or the cache is bypassed.
	CacheMiss

	// Searching runs the trial budget.
	Searching

	// Done is terminal.
	Done
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CacheCheck:
		return "cache_check"
	case CacheHit:
		return "cache_hit"
	case CacheMiss:
		return "cache_miss"
	case Searching:
		return "searching"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
