// Package paramstore persists the best hyperparameters found for each model
// family so later runs can skip the search.
//
// A Snapshot is the whole cache: one Entry per family plus the time of the
// last write. Stores load and save whole snapshots; callers update a loaded
// snapshot with With and save it back, so a write for one family preserves
// every other family.
package paramstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/thalesfsp/regtune"
	"gopkg.in/yaml.v3"
)

//////
// Const, vars, types.
//////

// Format is the serialization of a file snapshot.
type Format string

const (
	// JSON is the default format.
	JSON Format = "json"

	// YAML is selected for .yaml and .yml files.
	YAML Format = "yaml"
)

// legacyTimeLayout is the naive ISO timestamp found in older cache files.
const legacyTimeLayout = "2006-01-02T15:04:05.999999"

// Entry is the cached outcome of one completed search.
type Entry struct {
	// Params are the best hyperparameters of the search.
	Params regtune.Params `json:"params" yaml:"params"`

	// Score is the validation R² the params achieved. Zero for entries read
	// from the legacy layout, which did not record it.
	Score float64 `json:"score" yaml:"score"`

	// UpdatedAt is when the entry was written.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Snapshot is the full content of the cache.
type Snapshot struct {
	// Families maps a family identifier to its entry.
	Families map[string]Entry `json:"families" yaml:"families"`

	// LastUpdated is the time of the most recent write, zero when never
	// written.
	LastUpdated time.Time `json:"last_updated" yaml:"last_updated"`
}

// Store loads and saves whole snapshots.
type Store interface {
	// Load returns the persisted snapshot. A store that holds nothing yet
	// returns an empty snapshot and no error.
	Load(ctx context.Context) (Snapshot, error)

	// Save replaces the persisted snapshot atomically.
	Save(ctx context.Context, snapshot Snapshot) error
}

//////
// Methods.
//////

// Lookup returns the entry of family. Entries without params count as
// absent.
func (s Snapshot) Lookup(family string) (Entry, bool) {
	e, ok := s.Families[family]
	if !ok || len(e.Params) == 0 {
		return Entry{}, false
	}

	e.Params = e.Params.Clone()

	return e, true
}

// With returns a copy of s where family maps to entry and LastUpdated is
// now. The receiver is not modified.
func (s Snapshot) With(family string, entry Entry, now time.Time) Snapshot {
	out := s.Clone()

	entry.Params = entry.Params.Clone()
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}

	out.Families[family] = entry
	out.LastUpdated = now

	return out
}

// Clone returns a deep copy of s with a non-nil Families map.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Families:    make(map[string]Entry, len(s.Families)+1),
		LastUpdated: s.LastUpdated,
	}

	for k, e := range s.Families {
		e.Params = e.Params.Clone()
		out.Families[k] = e
	}

	return out
}

// Names returns the cached family identifiers in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Families))
	for k := range s.Families {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}

//////
// Exported functionalities.
//////

// FormatFor picks the format from a file name extension.
func FormatFor(path string) Format {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return YAML
	}

	return JSON
}

// Encode serializes a snapshot.
func Encode(s Snapshot, format Format) ([]byte, error) {
	s = s.Clone()

	if format == YAML {
		return yaml.Marshal(s)
	}

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(b, '\n'), nil
}

// Decode parses a snapshot. JSON input may also use the legacy flat layout
// where each family key maps directly to its params.
func Decode(data []byte, format Format) (Snapshot, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Snapshot{Families: map[string]Entry{}}, nil
	}

	if format == YAML {
		var s Snapshot
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Snapshot{}, err
		}

		return s.Clone(), nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, err
	}

	if _, ok := raw["families"]; ok {
		var s Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return Snapshot{}, err
		}

		return s.Clone(), nil
	}

	return decodeLegacy(raw)
}

//////
// Helper functions.
//////

// decodeLegacy reads {"<family>": {<params>}, ..., "last_updated": "..."}.
// Empty param objects are placeholders and are skipped.
func decodeLegacy(raw map[string]json.RawMessage) (Snapshot, error) {
	s := Snapshot{Families: map[string]Entry{}}

	if v, ok := raw["last_updated"]; ok {
		var ts *string
		if err := json.Unmarshal(v, &ts); err == nil && ts != nil {
			s.LastUpdated = parseTime(*ts)
		}
	}

	for key, v := range raw {
		if key == "last_updated" {
			continue
		}

		var params regtune.Params
		if err := json.Unmarshal(v, &params); err != nil {
			return Snapshot{}, fmt.Errorf("legacy entry %q: %w", key, err)
		}

		if len(params) == 0 {
			continue
		}

		s.Families[key] = Entry{Params: params, UpdatedAt: s.LastUpdated}
	}

	return s, nil
}

func parseTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, legacyTimeLayout} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}

	return time.Time{}
}

// persistenceError tags err as a cache persistence failure of op.
func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}

	return regtune.NewError(op, "", fmt.Errorf("%w: %w", regtune.ErrCachePersistence, err))
}
