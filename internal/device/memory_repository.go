package device

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// DefaultFixRetention is how many fixes the in-memory repository keeps per
// device.
const DefaultFixRetention = 1000

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-node runs. Production should use
// the PostgreSQL implementation.
type InMemoryRepository struct {
	mu        sync.RWMutex
	devices   map[string]*Device
	fixes     map[string][]*Fix // keyed by device ID, by RecordedAt
	retention int
}

// NewInMemoryRepository creates a new in-memory device repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		devices:   make(map[string]*Device),
		fixes:     make(map[string][]*Fix),
		retention: DefaultFixRetention,
	}
}

// Get retrieves a device by ID.
func (r *InMemoryRepository) Get(_ context.Context, deviceID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	return copyDevice(device), nil
}

// List retrieves devices ordered by creation time, newest first.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Device, 0, len(r.devices))
	for _, device := range r.devices {
		all = append(all, device)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start := 0
	if opts.Cursor != "" {
		i := slices.IndexFunc(all, func(d *Device) bool { return d.ID == opts.Cursor })
		if i < 0 {
			return &ListResult{}, nil
		}
		start = i + 1
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	result := &ListResult{}
	for i := start; i < len(all) && len(result.Items) < limit; i++ {
		result.Items = append(result.Items, copyDevice(all[i]))
	}
	if start+limit < len(all) {
		result.NextCursor = result.Items[len(result.Items)-1].ID
	}

	return result, nil
}

// Create creates a new device.
func (r *InMemoryRepository) Create(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices[device.ID] = copyDevice(device)
	return nil
}

// Update updates an existing device.
func (r *InMemoryRepository) Update(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[device.ID]; !ok {
		return ErrDeviceNotFound
	}

	r.devices[device.ID] = copyDevice(device)
	return nil
}

// Delete deletes a device and its fixes.
func (r *InMemoryRepository) Delete(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; !ok {
		return ErrDeviceNotFound
	}

	delete(r.devices, deviceID)
	delete(r.fixes, deviceID)
	return nil
}

// AppendFix stores a fix in time order and makes it the device's last fix
// unless it was taken before the current one.
func (r *InMemoryRepository) AppendFix(_ context.Context, deviceID string, fix *Fix) (*Appended, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	history := r.fixes[deviceID]
	at := sort.Search(len(history), func(i int) bool {
		return history[i].RecordedAt.After(fix.RecordedAt)
	})
	history = slices.Insert(history, at, copyFix(fix))
	if len(history) > r.retention {
		history = history[len(history)-r.retention:]
	}
	r.fixes[deviceID] = history

	appended := &Appended{Previous: copyFix(device.LastFix), Latest: supersedes(fix, device.LastFix)}
	if appended.Latest {
		device.LastFix = copyFix(fix)
		device.UpdatedAt = fix.RecordedAt
	}
	return appended, nil
}

// Fixes returns up to limit of the most recent fixes, oldest first.
func (r *InMemoryRepository) Fixes(_ context.Context, deviceID string, limit int) ([]*Fix, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.devices[deviceID]; !ok {
		return nil, ErrDeviceNotFound
	}

	history := r.fixes[deviceID]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	out := make([]*Fix, 0, len(history))
	for _, f := range history {
		out = append(out, copyFix(f))
	}
	return out, nil
}

// copyDevice creates a deep copy of a device.
func copyDevice(d *Device) *Device {
	if d == nil {
		return nil
	}

	deviceCopy := *d
	deviceCopy.LastFix = copyFix(d.LastFix)
	return &deviceCopy
}

// copyFix creates a deep copy of a fix.
func copyFix(f *Fix) *Fix {
	if f == nil {
		return nil
	}

	fixCopy := *f
	if f.Accuracy != nil {
		val := *f.Accuracy
		fixCopy.Accuracy = &val
	}
	if f.Altitude != nil {
		val := *f.Altitude
		fixCopy.Altitude = &val
	}
	if f.Block != nil {
		val := *f.Block
		fixCopy.Block = &val
	}
	return &fixCopy
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
