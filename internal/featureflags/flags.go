// Package featureflags holds runtime switches for the locator: adaptive
// polling, block change events, the poll threshold and the track size cap.
// Flags live in a repository and are served from a periodically refreshed
// snapshot, falling back to built-in defaults.
package featureflags

import (
	"fmt"
	"sort"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagAdaptivePolling shortens poll intervals near block boundaries.
	// When off every device polls at its mode's base interval.
	FlagAdaptivePolling = "adaptive_polling"

	// FlagBlockChangeEvents publishes an event whenever a device changes block.
	FlagBlockChangeEvents = "block_change_events"

	// FlagPollThreshold overrides the boundary distance (meters) below which
	// polling speeds up. Zero keeps the configured value.
	FlagPollThreshold = "poll_threshold_m"

	// FlagTrackMaxPoints caps the number of fixes returned in a device track.
	FlagTrackMaxPoints = "track_max_points"
)

// Kind is the value type a flag accepts.
type Kind int

const (
	KindBool Kind = iota
	KindNumber
)

type definition struct {
	kind Kind
	def  interface{}
}

// definitions lists every flag the service knows with its default value.
// Numbers are float64, matching what JSON decoding produces.
var definitions = map[string]definition{
	FlagAdaptivePolling:   {KindBool, true},
	FlagBlockChangeEvents: {KindBool, true},
	FlagPollThreshold:     {KindNumber, float64(0)},
	FlagTrackMaxPoints:    {KindNumber, float64(200)},
}

// ValidateValue checks that key is a known flag and value has its kind.
// Numbers must be non-negative.
func ValidateValue(key string, value interface{}) error {
	d, ok := definitions[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	switch d.kind {
	case KindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %s expects a boolean", ErrInvalidFlagValue, key)
		}
	case KindNumber:
		n, ok := number(value)
		if !ok || n < 0 {
			return fmt.Errorf("%w: %s expects a non-negative number", ErrInvalidFlagValue, key)
		}
	}
	return nil
}

// Flag is a stored flag value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// FlagList is the admin API listing.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate sets one flag.
type FlagUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest is the admin API update body. Reason is logged.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the value as a bool, treating numbers as non-zero
// tests, or def when f is nil or of another type.
func (f *Flag) BoolValue(def bool) bool {
	if f == nil {
		return def
	}
	if b, ok := f.Value.(bool); ok {
		return b
	}
	if n, ok := number(f.Value); ok {
		return n != 0
	}
	return def
}

// Float64Value returns the numeric value, or def.
func (f *Flag) Float64Value(def float64) float64 {
	if f == nil {
		return def
	}
	if n, ok := number(f.Value); ok {
		return n
	}
	return def
}

// IntValue returns the numeric value truncated to int, or def.
func (f *Flag) IntValue(def int) int {
	if f == nil {
		return def
	}
	if n, ok := number(f.Value); ok {
		return int(n)
	}
	return def
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// DefaultFlags returns every known flag at its default value, sorted by key.
func DefaultFlags() []Flag {
	out := make([]Flag, 0, len(definitions))
	for key, d := range definitions {
		out = append(out, Flag{Key: key, Value: d.def})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
