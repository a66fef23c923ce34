package device

import "context"

// Repository defines the interface for device persistence.
type Repository interface {
	// Get retrieves a device by ID.
	Get(ctx context.Context, deviceID string) (*Device, error)

	// List retrieves devices ordered by creation time, newest first. A
	// cursor naming no device yields an empty page.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Create creates a new device.
	Create(ctx context.Context, device *Device) error

	// Update updates an existing device.
	Update(ctx context.Context, device *Device) error

	// Delete deletes a device and its fixes.
	Delete(ctx context.Context, deviceID string) error

	// AppendFix stores a fix in the history and makes it the device's last
	// fix unless an earlier-taken fix arrived late. Reading the previous
	// fix and replacing it is atomic per device.
	AppendFix(ctx context.Context, deviceID string, fix *Fix) (*Appended, error)

	// Fixes returns up to limit of the most recently taken fixes, oldest
	// first by RecordedAt.
	Fixes(ctx context.Context, deviceID string, limit int) ([]*Fix, error)
}
