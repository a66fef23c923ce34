// Package poll decides how often a device should re-read its position.
// Devices close to a block boundary poll faster so crossings are noticed
// promptly; devices deep inside a block fall back to the base interval.
package poll

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Mode is the visibility state of the tracking client.
type Mode string

const (
	ModeForeground Mode = "FOREGROUND"
	ModeBackground Mode = "BACKGROUND"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeForeground || m == ModeBackground
}

// ParseMode parses a mode, defaulting empty input to foreground.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeForeground, nil
	}
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

// Errors.
var (
	ErrInvalidMode   = errors.New("invalid mode")
	ErrInvalidPolicy = errors.New("invalid poll policy")
)

// Default policy values.
const (
	DefaultMinUpdateTime      = 2 * time.Second
	DefaultForeground         = 15 * time.Second
	DefaultBackground         = 2 * time.Minute
	DefaultThreshold          = 500.0
	DefaultNearDistance       = 100.0
	DefaultNearDistanceChange = 10.0
	DefaultMaxDistanceChange  = 500.0
)

// Policy configures interval and distance-change recommendations.
// Distances are in meters.
type Policy struct {
	MinUpdateTime time.Duration `mapstructure:"min_update_time"`
	Foreground    time.Duration `mapstructure:"foreground"`
	Background    time.Duration `mapstructure:"background"`
	Threshold     float64       `mapstructure:"threshold"`

	NearDistance       float64 `mapstructure:"near_distance"`
	NearDistanceChange float64 `mapstructure:"near_distance_change"`
	MaxDistanceChange  float64 `mapstructure:"max_distance_change"`
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() Policy {
	return Policy{
		MinUpdateTime:      DefaultMinUpdateTime,
		Foreground:         DefaultForeground,
		Background:         DefaultBackground,
		Threshold:          DefaultThreshold,
		NearDistance:       DefaultNearDistance,
		NearDistanceChange: DefaultNearDistanceChange,
		MaxDistanceChange:  DefaultMaxDistanceChange,
	}
}

// Validate checks that the policy is self-consistent.
func (p Policy) Validate() error {
	switch {
	case p.MinUpdateTime <= 0:
		return fmt.Errorf("%w: min update time must be positive", ErrInvalidPolicy)
	case p.Foreground < p.MinUpdateTime || p.Background < p.MinUpdateTime:
		return fmt.Errorf("%w: base intervals must be at least %s", ErrInvalidPolicy, p.MinUpdateTime)
	case p.Threshold <= 0:
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidPolicy)
	case p.NearDistance < 0 || math.IsNaN(p.NearDistance):
		return fmt.Errorf("%w: near distance must not be negative", ErrInvalidPolicy)
	case p.NearDistanceChange <= 0 || p.MaxDistanceChange < p.NearDistanceChange:
		return fmt.Errorf("%w: distance change bounds out of order", ErrInvalidPolicy)
	}
	return nil
}

// Base returns the unshortened interval for mode.
func (p Policy) Base(mode Mode) time.Duration {
	if mode == ModeBackground {
		return p.Background
	}
	return p.Foreground
}

// Interval returns the poll interval for a device whose nearest boundary is
// distance meters away.
func (p Policy) Interval(distance float64, mode Mode) time.Duration {
	return Interval(distance, p.Base(mode), p.MinUpdateTime, p.Threshold)
}

// Interval scales base linearly with distance once distance drops below
// threshold, clamped to [minimum, base]. Negative or NaN distances return
// minimum.
func Interval(distance float64, base, minimum time.Duration, threshold float64) time.Duration {
	if math.IsNaN(distance) || distance < 0 {
		return minimum
	}
	if distance >= threshold {
		return base
	}

	scaled := time.Duration(float64(base) * distance / threshold)
	if scaled < minimum {
		return minimum
	}
	if scaled > base {
		return base
	}
	return scaled
}

// MinDistanceChange returns how far a device should move before its next
// update is worth reporting. Within NearDistance of a boundary it is
// NearDistanceChange; further out it is half the boundary distance, bounded
// by NearDistanceChange and MaxDistanceChange.
func (p Policy) MinDistanceChange(distance float64) float64 {
	if math.IsNaN(distance) || distance < p.NearDistance {
		return p.NearDistanceChange
	}
	return math.Min(math.Max(distance/2, p.NearDistanceChange), p.MaxDistanceChange)
}

// Advice is a recommendation for the next position read.
type Advice struct {
	Interval          time.Duration
	MinDistanceChange float64
}

// Advise combines Interval and MinDistanceChange. inGrid false means the
// device is outside every block, which yields the base interval and the
// largest distance change.
func (p Policy) Advise(distance float64, inGrid bool, mode Mode) Advice {
	if !inGrid {
		return Advice{Interval: p.Base(mode), MinDistanceChange: p.MaxDistanceChange}
	}
	return Advice{
		Interval:          p.Interval(distance, mode),
		MinDistanceChange: p.MinDistanceChange(distance),
	}
}

// Fixed returns the base-interval advice used when adaptive polling is
// switched off.
func (p Policy) Fixed(mode Mode) Advice {
	return Advice{Interval: p.Base(mode), MinDistanceChange: p.NearDistanceChange}
}
