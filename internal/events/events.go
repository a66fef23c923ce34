// Package events carries block transitions from the API to the worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/bbagrid/bbagrid/internal/grid"
)

// TypeBlockChanged is the message type attribute of BlockChanged events.
const TypeBlockChanged = "block_changed"

// Transition classifies a BlockChanged event.
type Transition string

const (
	TransitionEntered Transition = "enter"
	TransitionLeft    Transition = "leave"
	TransitionMoved   Transition = "move"
)

// BlockChanged is emitted when a device's fix lands in a different block
// than its previous fix. A nil From or To means outside the grid.
type BlockChanged struct {
	DeviceID   string        `json:"deviceId"`
	From       *grid.BlockID `json:"from,omitempty"`
	To         *grid.BlockID `json:"to,omitempty"`
	Lat        float64       `json:"lat"`
	Lon        float64       `json:"lon"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// Transition returns the kind of change.
func (e BlockChanged) Transition() Transition {
	switch {
	case e.From == nil:
		return TransitionEntered
	case e.To == nil:
		return TransitionLeft
	default:
		return TransitionMoved
	}
}

// Marshal encodes the event as JSON.
func (e BlockChanged) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal block changed: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a BlockChanged message.
func Unmarshal(data []byte) (BlockChanged, error) {
	var e BlockChanged
	if err := json.Unmarshal(data, &e); err != nil {
		return BlockChanged{}, fmt.Errorf("unmarshal block changed: %w", err)
	}
	if e.DeviceID == "" {
		return BlockChanged{}, fmt.Errorf("unmarshal block changed: missing deviceId")
	}
	return e, nil
}

// Attributes returns the message attributes for e. The trace context of
// ctx is injected so the consumer continues the same trace.
func Attributes(ctx context.Context, e BlockChanged) map[string]string {
	attrs := map[string]string{
		"type":       TypeBlockChanged,
		"deviceId":   e.DeviceID,
		"transition": string(e.Transition()),
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(attrs))
	return attrs
}

// Publisher delivers events.
type Publisher interface {
	PublishBlockChanged(ctx context.Context, e BlockChanged) error
	Close() error
}
