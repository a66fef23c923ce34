package worker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/bbagrid/bbagrid/internal/events"
)

const instrumentationName = "github.com/bbagrid/bbagrid/internal/worker"

// PubSubConfig holds configuration for the Pub/Sub consumer.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Tally            *Tally
	Config           Config
	Metrics          *Metrics
	Logger           zerolog.Logger
}

// PubSubHandler feeds BlockChanged messages from a subscription into a
// Tally. Every message is acked: unusable ones would only be redelivered
// forever, and Tally.Apply already absorbs redelivery.
type PubSubHandler struct {
	client       *pubsub.Client
	subscriber   *pubsub.Subscriber
	subscription string

	consumer
}

// consumer is the transport-free part of the handler.
type consumer struct {
	tally   *Tally
	metrics *Metrics
	tracer  trace.Tracer
	logger  zerolog.Logger
}

func newConsumer(tally *Tally, metrics *Metrics, logger zerolog.Logger) consumer {
	return consumer{
		tally:   tally,
		metrics: metrics,
		tracer:  otel.Tracer(instrumentationName),
		logger:  logger,
	}
}

func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	wc := cfg.Config.withDefaults()
	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = wc.MaxOutstandingMessages
	subscriber.ReceiveSettings.MaxExtension = wc.MaxExtension

	return &PubSubHandler{
		client:       client,
		subscriber:   subscriber,
		subscription: cfg.SubscriptionName,
		consumer:     newConsumer(cfg.Tally, cfg.Metrics, cfg.Logger),
	}, nil
}

// Start receives messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().Str("subscription", h.subscription).Msg("receiving block changes")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handle(ctx, msg.ID, msg.Attributes, msg.Data)
		msg.Ack()
	})
}

func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// handle applies one message inside a consumer span that continues the
// publisher's trace. The returned error marks a dropped message.
func (c consumer) handle(ctx context.Context, id string, attrs map[string]string, data []byte) (Outcome, error) {
	start := time.Now()
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(attrs))
	ctx, span := c.tracer.Start(ctx, "block_changed process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "gcp_pubsub"),
			attribute.String("messaging.message.id", id),
		),
	)
	defer span.End()

	e, err := decode(attrs, data)
	if err != nil {
		c.logger.Warn().Err(err).Str("message_id", id).Msg("dropping message")
		span.SetStatus(codes.Error, err.Error())
		c.metrics.recordDropped(ctx)
		return 0, err
	}

	outcome := c.tally.Apply(e)
	span.SetAttributes(
		attribute.String("bbagrid.device_id", e.DeviceID),
		attribute.String("bbagrid.outcome", outcome.String()),
	)
	c.metrics.recordOutcome(ctx, e, outcome)

	c.logger.Debug().
		Str("message_id", id).
		Str("device_id", e.DeviceID).
		Str("transition", string(e.Transition())).
		Stringer("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("block change processed")
	return outcome, nil
}

func decode(attrs map[string]string, data []byte) (events.BlockChanged, error) {
	if typ, ok := attrs["type"]; ok && typ != events.TypeBlockChanged {
		return events.BlockChanged{}, fmt.Errorf("unexpected message type %q", typ)
	}
	return events.Unmarshal(data)
}
