// Package locator answers "where am I in the grid" for ad-hoc positions and
// registered devices.
package locator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bbagrid/bbagrid/internal/device"
	"github.com/bbagrid/bbagrid/internal/events"
	"github.com/bbagrid/bbagrid/internal/featureflags"
	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/poll"
)

// ErrInvalidCoordinates is returned for positions outside valid lat/lon ranges.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Report describes a position relative to the grid.
type Report struct {
	Lat    float64
	Lon    float64
	Mode   poll.Mode
	InGrid bool

	// Set only when InGrid.
	Block     *grid.Block
	Distances *grid.Distances
	Nearest   *grid.Nearest
	FractionX float64
	FractionY float64

	Summary string
	Advice  poll.Advice
}

// NearestBoundary returns the distance to the closest edge, or NaN outside
// the grid.
func (r *Report) NearestBoundary() float64 {
	if r.Distances == nil {
		return math.NaN()
	}
	return r.Distances.Min()
}

// BlockID returns the report's block, or nil outside the grid.
func (r *Report) BlockID() *grid.BlockID {
	if r.Block == nil {
		return nil
	}
	id := r.Block.ID
	return &id
}

// Fix is a position report from a device.
type Fix struct {
	Lat        float64
	Lon        float64
	Accuracy   *float64
	Altitude   *float64
	RecordedAt time.Time
}

// RecordResult is the outcome of Record.
type RecordResult struct {
	Report    *Report
	Device    *device.Device
	Changed   bool
	From      *grid.BlockID
	To        *grid.BlockID
	Published bool

	// Late is set when the fix was taken before the device's last fix. It
	// is kept in the track but never changes the device's block.
	Late bool
}

// ServiceConfig holds configuration for the locator service.
type ServiceConfig struct {
	Table     *grid.Table
	Policy    poll.Policy
	Devices   *device.Service
	Flags     *featureflags.Service
	Publisher events.Publisher
	Metrics   *Metrics
	Logger    zerolog.Logger
}

// Service locates positions and records device fixes.
type Service struct {
	table     *grid.Table
	policy    poll.Policy
	devices   *device.Service
	flags     *featureflags.Service
	publisher events.Publisher
	metrics   *Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a locator service. Table defaults to the built-in grid.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == nil {
		table = grid.Default()
	}

	return &Service{
		table:     table,
		policy:    cfg.Policy,
		devices:   cfg.Devices,
		flags:     cfg.Flags,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With().Str("component", "locator").Logger(),
		now:       time.Now,
	}, nil
}

// Table returns the grid in use.
func (s *Service) Table() *grid.Table {
	return s.table
}

// Policy returns the configured poll policy.
func (s *Service) Policy() poll.Policy {
	return s.policy
}

// Locate reports where (lat, lon) falls in the grid and how soon a device
// in mode should poll again.
func (s *Service) Locate(ctx context.Context, lat, lon float64, mode poll.Mode) (*Report, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: %v,%v", ErrInvalidCoordinates, lat, lon)
	}
	if mode == "" {
		mode = poll.ModeForeground
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", poll.ErrInvalidMode, mode)
	}

	report := &Report{Lat: lat, Lon: lon, Mode: mode}

	policy := s.effectivePolicy(ctx)
	block, ok := s.table.Locate(lat, lon)
	if !ok {
		report.Summary = grid.OutsideText
		report.Advice = s.advise(ctx, policy, math.NaN(), false, mode)
		s.metrics.recordLookup(ctx, report)
		return report, nil
	}

	dist := block.Distances(lat, lon)
	nearest := s.table.Nearest(block, dist)

	report.InGrid = true
	report.Block = &block
	report.Distances = &dist
	report.Nearest = &nearest
	report.FractionX, report.FractionY = dist.Fraction()
	report.Summary = grid.Summary(block.ID, nearest)
	report.Advice = s.advise(ctx, policy, dist.Min(), true, mode)

	s.metrics.recordLookup(ctx, report)
	return report, nil
}

func (s *Service) effectivePolicy(ctx context.Context) poll.Policy {
	p := s.policy
	if s.flags != nil {
		p.Threshold = s.flags.PollThreshold(ctx, p.Threshold)
	}
	return p
}

func (s *Service) advise(ctx context.Context, p poll.Policy, distance float64, inGrid bool, mode poll.Mode) poll.Advice {
	if s.flags != nil && !s.flags.IsAdaptivePollingEnabled(ctx) {
		return p.Fixed(mode)
	}
	return p.Advise(distance, inGrid, mode)
}

// Record locates fix for a registered device, stores it and publishes a
// BlockChanged event when the device moved to a different block.
func (s *Service) Record(ctx context.Context, deviceID string, fix Fix) (*RecordResult, error) {
	if s.devices == nil {
		return nil, errors.New("locator: no device service configured")
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "locator.Record",
		trace.WithAttributes(attribute.String("device.id", deviceID)))
	defer span.End()

	result, err := s.record(ctx, deviceID, fix)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("bbagrid.in_grid", result.Report.InGrid),
		attribute.Bool("bbagrid.block_changed", result.Changed),
	)
	return result, nil
}

func (s *Service) record(ctx context.Context, deviceID string, fix Fix) (*RecordResult, error) {
	dev, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	report, err := s.Locate(ctx, fix.Lat, fix.Lon, dev.Mode)
	if err != nil {
		return nil, err
	}

	if fix.RecordedAt.IsZero() {
		fix.RecordedAt = s.now().UTC()
	}

	to := report.BlockID()

	appended, err := s.devices.AppendFix(ctx, deviceID, &device.Fix{
		Lat:        fix.Lat,
		Lon:        fix.Lon,
		Accuracy:   fix.Accuracy,
		Altitude:   fix.Altitude,
		Block:      to,
		RecordedAt: fix.RecordedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("append fix: %w", err)
	}
	from := appended.PreviousBlock()

	dev, err = s.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	result := &RecordResult{
		Report:  report,
		Device:  dev,
		From:    from,
		To:      to,
		Late:    !appended.Latest,
		Changed: appended.Latest && !sameBlock(from, to),
	}
	if result.Late {
		s.logger.Debug().
			Str("device_id", deviceID).
			Time("recorded_at", fix.RecordedAt).
			Msg("late fix stored in history only")
	}
	if !result.Changed {
		return result, nil
	}

	event := events.BlockChanged{
		DeviceID:   deviceID,
		From:       from,
		To:         to,
		Lat:        fix.Lat,
		Lon:        fix.Lon,
		OccurredAt: fix.RecordedAt,
	}
	s.metrics.recordChange(ctx, string(event.Transition()))

	s.logger.Info().
		Str("device_id", deviceID).
		Str("transition", string(event.Transition())).
		Str("summary", report.Summary).
		Msg("device changed block")

	if s.publisher == nil || (s.flags != nil && !s.flags.AreBlockEventsEnabled(ctx)) {
		return result, nil
	}

	// The fix is already stored; a failed publish is logged, not returned.
	if err := s.publisher.PublishBlockChanged(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("failed to publish block change")
		return result, nil
	}
	result.Published = true
	return result, nil
}

func sameBlock(a, b *grid.BlockID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
