// Package worker consumes block-change events and keeps a live occupancy
// tally of the grid.
package worker

import (
	"time"
)

// Config holds configuration for the tally worker.
type Config struct {
	// StaleAfter is how long a device may stay silent before the sweep
	// removes it from its block.
	// Default: 30 minutes
	StaleAfter time.Duration `mapstructure:"stale_after"`

	// SweepInterval is how often stale devices are swept.
	// Default: 1 minute
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// MaxOutstandingMessages caps unacknowledged Pub/Sub messages.
	// Default: 10
	MaxOutstandingMessages int `mapstructure:"max_outstanding_messages"`

	// MaxExtension is the longest a message's ack deadline is extended.
	// Default: 10 minutes
	MaxExtension time.Duration `mapstructure:"max_extension"`
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		StaleAfter:             30 * time.Minute,
		SweepInterval:          time.Minute,
		MaxOutstandingMessages: 10,
		MaxExtension:           10 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = d.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = d.MaxExtension
	}
	return c
}
