// Package device tracks registered GPS devices and their fix history.
package device

import (
	"errors"
	"time"

	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/poll"
)

// Repository errors.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidFix     = errors.New("invalid fix")
)

// Device represents a tracked GPS device.
type Device struct {
	ID        string
	Name      string
	Mode      poll.Mode
	LastFix   *Fix
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Block returns the block of the last fix, or nil when the device has no
// fix or was last seen outside the grid.
func (d *Device) Block() *grid.BlockID {
	if d.LastFix == nil {
		return nil
	}
	return d.LastFix.Block
}

// Fix is a single position report.
type Fix struct {
	Lat        float64
	Lon        float64
	Accuracy   *float64 // meters
	Altitude   *float64 // meters
	Block      *grid.BlockID
	RecordedAt time.Time
}

// Validate checks coordinate ranges.
func (f Fix) Validate() error {
	if f.Lat < -90 || f.Lat > 90 || f.Lon < -180 || f.Lon > 180 {
		return ErrInvalidFix
	}
	if f.RecordedAt.IsZero() {
		return ErrInvalidFix
	}
	return nil
}

// Appended is the outcome of storing a fix.
type Appended struct {
	// Previous is the device's last fix before the append, nil for its
	// first fix.
	Previous *Fix

	// Latest is false when the fix was taken before Previous. Such a fix
	// is kept in the history but leaves the device's last fix alone.
	Latest bool
}

// PreviousBlock is the block the device was in before the append.
func (a *Appended) PreviousBlock() *grid.BlockID {
	if a.Previous == nil {
		return nil
	}
	return a.Previous.Block
}

// supersedes reports whether fix becomes the last fix over prev.
func supersedes(fix, prev *Fix) bool {
	return prev == nil || !fix.RecordedAt.Before(prev.RecordedAt)
}

// ListOptions contains options for listing devices.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ListResult contains the result of listing devices.
type ListResult struct {
	Items      []*Device
	NextCursor string
}

// Track is a device's recent path.
type Track struct {
	DeviceID string
	Points   int
	Polyline string
	Length   float64 // meters
	From     time.Time
	To       time.Time
	Blocks   []grid.BlockID
}
