package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"marketslip/internal/platform/metrics"
	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/requestcontext"
)

// AMQPPublisher publishes persistent JSON messages to a topic exchange.
type AMQPPublisher struct {
	conns    *ConnectionManager
	topology Topology
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a publisher.
type Option func(*publisherOptions)

type publisherOptions struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	topology Topology
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *publisherOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *publisherOptions) {
		o.metrics = m
	}
}

func WithTopology(t Topology) Option {
	return func(o *publisherOptions) {
		o.topology = t
	}
}

func applyOptions(opts []Option) publisherOptions {
	o := publisherOptions{logger: slog.Default(), topology: DefaultTopology()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func NewAMQPPublisher(conns *ConnectionManager, opts ...Option) *AMQPPublisher {
	o := applyOptions(opts)
	return &AMQPPublisher{
		conns:    conns,
		topology: o.topology,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// EnsureTopology declares the durable exchange, the durable queue and one
// binding per routing key. Declarations are idempotent on the broker.
func (p *AMQPPublisher) EnsureTopology(ctx context.Context) error {
	conn, ch, err := p.openChannel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := p.declareTopology(conn, ch); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "broker topology ready",
		"exchange", p.topology.Exchange,
		"queue", p.topology.Queue,
		"routing_keys", p.topology.RoutingKeys,
	)
	return nil
}

// Publish serializes payload and publishes it persistently under routingKey.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePublishFailure, "invalid event payload")
	}

	conn, ch, err := p.openChannel(ctx)
	if err != nil {
		p.metrics.IncrementEventPublished(routingKey, false)
		return err
	}
	defer ch.Close()

	// Messages sent before the queue is bound are dropped by the broker.
	if !p.conns.TopologyDeclared(conn) {
		if err := p.declareTopology(conn, ch); err != nil {
			p.metrics.IncrementEventPublished(routingKey, false)
			return err
		}
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    requestcontext.Now(ctx),
		Body:         body,
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		msg.CorrelationId = requestID
	}

	if err := ch.PublishWithContext(ctx, p.topology.Exchange, routingKey, false, false, msg); err != nil {
		if conn.IsClosed() {
			p.conns.Invalidate(conn)
		}
		p.metrics.IncrementEventPublished(routingKey, false)
		p.logger.ErrorContext(ctx, "event publish failed",
			"exchange", p.topology.Exchange,
			"routing_key", routingKey,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.Wrap(err, dErrors.CodePublishFailure, "failed to publish event")
	}

	p.metrics.IncrementEventPublished(routingKey, true)
	p.logger.InfoContext(ctx, "event published",
		"exchange", p.topology.Exchange,
		"routing_key", routingKey,
		"message_id", msg.MessageId,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	return p.conns.Shutdown()
}

func (p *AMQPPublisher) openChannel(ctx context.Context) (Connection, Channel, error) {
	conn, err := p.conns.Acquire(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "message broker unavailable",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, nil, dErrors.Wrap(err, dErrors.CodePublishFailure, "message broker unavailable")
	}
	ch, err := conn.Channel()
	if err != nil {
		p.conns.Invalidate(conn)
		return nil, nil, dErrors.Wrap(fmt.Errorf("open channel: %w", err), dErrors.CodePublishFailure, "message broker unavailable")
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) declareTopology(conn Connection, ch Channel) error {
	if err := ch.ExchangeDeclare(p.topology.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		p.conns.Invalidate(conn)
		return dErrors.Wrap(err, dErrors.CodePublishFailure, "failed to declare exchange")
	}
	if _, err := ch.QueueDeclare(p.topology.Queue, true, false, false, false, nil); err != nil {
		p.conns.Invalidate(conn)
		return dErrors.Wrap(err, dErrors.CodePublishFailure, "failed to declare queue")
	}
	for _, key := range p.topology.RoutingKeys {
		if err := ch.QueueBind(p.topology.Queue, key, p.topology.Exchange, false, nil); err != nil {
			p.conns.Invalidate(conn)
			return dErrors.Wrap(err, dErrors.CodePublishFailure, "failed to bind queue")
		}
	}
	p.conns.MarkTopologyDeclared(conn)
	return nil
}
