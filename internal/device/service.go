package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bbagrid/bbagrid/internal/poll"
	"github.com/bbagrid/bbagrid/pkg/polyline"
)

// DefaultTrackLimit is the number of fixes a track covers when the caller
// does not ask for a specific count.
const DefaultTrackLimit = 200

// Service provides device operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new device service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register creates a new device. An empty mode means foreground.
func (s *Service) Register(ctx context.Context, name string, mode poll.Mode) (*Device, error) {
	if mode == "" {
		mode = poll.ModeForeground
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", poll.ErrInvalidMode, mode)
	}

	now := s.now().UTC()
	device := &Device{
		ID:        "dev_" + uuid.New().String()[:22],
		Name:      strings.TrimSpace(name),
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	return device, nil
}

// Get retrieves a device by ID.
func (s *Service) Get(ctx context.Context, deviceID string) (*Device, error) {
	return s.repo.Get(ctx, deviceID)
}

// List retrieves registered devices, newest first.
func (s *Service) List(ctx context.Context, limit int, cursor string) (*ListResult, error) {
	return s.repo.List(ctx, ListOptions{Limit: limit, Cursor: cursor})
}

// SetMode switches a device between foreground and background polling.
func (s *Service) SetMode(ctx context.Context, deviceID string, mode poll.Mode) (*Device, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", poll.ErrInvalidMode, mode)
	}

	device, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Mode == mode {
		return device, nil
	}

	device.Mode = mode
	device.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// Delete removes a device and its history.
func (s *Service) Delete(ctx context.Context, deviceID string) error {
	return s.repo.Delete(ctx, deviceID)
}

// AppendFix validates and stores a fix for the device.
func (s *Service) AppendFix(ctx context.Context, deviceID string, fix *Fix) (*Appended, error) {
	if err := fix.Validate(); err != nil {
		return nil, err
	}
	return s.repo.AppendFix(ctx, deviceID, fix)
}

// Track returns the device's most recent fixes as an encoded polyline.
func (s *Service) Track(ctx context.Context, deviceID string, limit int) (*Track, error) {
	if limit <= 0 {
		limit = DefaultTrackLimit
	}

	fixes, err := s.repo.Fixes(ctx, deviceID, limit)
	if err != nil {
		return nil, err
	}

	track := &Track{DeviceID: deviceID, Points: len(fixes)}
	if len(fixes) == 0 {
		return track, nil
	}

	coords := make([]polyline.Coordinate, 0, len(fixes))
	for _, f := range fixes {
		coords = append(coords, polyline.Coordinate{Lat: f.Lat, Lon: f.Lon})
		if f.Block != nil && (len(track.Blocks) == 0 || track.Blocks[len(track.Blocks)-1] != *f.Block) {
			track.Blocks = append(track.Blocks, *f.Block)
		}
	}

	track.Polyline = polyline.Encode(coords)
	track.Length = polyline.Length(coords)
	track.From = fixes[0].RecordedAt
	track.To = fixes[len(fixes)-1].RecordedAt
	return track, nil
}

// BlocksVisited is a convenience for callers that only need the block
// sequence of a track.
func BlocksVisited(t *Track) []string {
	out := make([]string, 0, len(t.Blocks))
	for _, b := range t.Blocks {
		out = append(out, b.String())
	}
	return out
}
