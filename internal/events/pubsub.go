package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/bbagrid/bbagrid/internal/resilience"
)

// ErrPublishUnavailable is returned while the publish circuit is open.
var ErrPublishUnavailable = errors.New("event publishing unavailable")

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Timeout   time.Duration
	Logger    zerolog.Logger
	Registry  *resilience.Registry
}

// PubSubPublisher publishes events to a Pub/Sub topic through a circuit
// breaker.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	breaker   *gobreaker.CircuitBreaker[string]
	registry  *resilience.Registry
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for cfg.Topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	logger := cfg.Logger.With().Str("component", "events").Str("topic", cfg.Topic).Logger()

	cbConfig := resilience.DefaultCircuitBreakerConfig("pubsub:" + cfg.Topic)
	cbConfig.Timeout = 30 * time.Second
	cbConfig.OnStateChange = resilience.LogStateChanges(logger)
	breaker := resilience.NewCircuitBreaker[string](cbConfig)
	if cfg.Registry != nil {
		cfg.Registry.Register(cbConfig.Name, breaker)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		breaker:   breaker,
		registry:  cfg.Registry,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// PublishBlockChanged publishes e and waits for the server ack.
func (p *PubSubPublisher) PublishBlockChanged(ctx context.Context, e BlockChanged) error {
	data, err := e.Marshal()
	if err != nil {
		return err
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: Attributes(ctx, e),
	}

	id, err := p.breaker.Execute(func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.publisher.Publish(ctx, msg).Get(ctx)
	})
	if err != nil {
		if resilience.IsRejected(err) {
			return ErrPublishUnavailable
		}
		p.record(err)
		return fmt.Errorf("publish block changed: %w", err)
	}
	p.record(nil)

	p.logger.Debug().
		Str("message_id", id).
		Str("device_id", e.DeviceID).
		Msg("published block changed")
	return nil
}

func (p *PubSubPublisher) record(err error) {
	if p.registry == nil {
		return
	}
	name := p.breaker.Name()
	if err != nil {
		p.registry.RecordFailure(name, err)
		return
	}
	p.registry.RecordSuccess(name)
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

var _ Publisher = (*PubSubPublisher)(nil)
