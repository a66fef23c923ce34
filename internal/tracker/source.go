// Package tracker is the device-side agent: it reads positions from a GPS
// source, tells the user which block they are in and reports fixes to the
// API, spooling them locally while the API is unreachable.
package tracker

import (
	"context"
	"errors"

	"github.com/bbagrid/bbagrid/internal/locator"
)

// ErrSourceExhausted is returned by finite sources after their last fix.
var ErrSourceExhausted = errors.New("position source exhausted")

// Source yields position fixes.
type Source interface {
	// Next blocks until a fix newer than the previous one is available.
	Next(ctx context.Context) (locator.Fix, error)
	Close() error
}
