package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to a zerolog logger. Used when no Pub/Sub
// project is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

// PublishBlockChanged logs the event.
func (p *LogPublisher) PublishBlockChanged(_ context.Context, e BlockChanged) error {
	ev := p.logger.Info().
		Str("device_id", e.DeviceID).
		Str("transition", string(e.Transition())).
		Float64("lat", e.Lat).
		Float64("lon", e.Lon).
		Time("occurred_at", e.OccurredAt)
	if e.From != nil {
		ev = ev.Str("from", e.From.String())
	}
	if e.To != nil {
		ev = ev.Str("to", e.To.String())
	}
	ev.Msg("block changed")
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}

var _ Publisher = (*LogPublisher)(nil)
