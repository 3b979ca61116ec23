package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"marketslip/internal/platform/metrics"
	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/requestcontext"
)

// Header carrying the AMQP-style routing key on Kafka records.
const HeaderRoutingKey = "routing_key"

// KafkaPublisher publishes to a topic named after the exchange. The routing
// key travels as a record header and the reservation id, when present, is the
// record key so one reservation's events stay ordered.
type KafkaPublisher struct {
	client  *kgo.Client
	admin   *kadm.Client
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewKafkaPublisher(brokers []string, opts ...Option) (*KafkaPublisher, error) {
	o := applyOptions(opts)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.NoCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{
		client:  client,
		admin:   kadm.NewClient(client),
		topic:   o.topology.Exchange,
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

// EnsureTopology creates the topic if it does not exist yet.
func (p *KafkaPublisher) EnsureTopology(ctx context.Context) error {
	resp, err := p.admin.CreateTopics(ctx, 1, -1, nil, p.topic)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePublishFailure, "failed to create topic")
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return dErrors.Wrap(r.Err, dErrors.CodePublishFailure, "failed to create topic")
		}
	}
	p.logger.InfoContext(ctx, "kafka topic ready", "topic", p.topic)
	return nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePublishFailure, "invalid event payload")
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   partitionKey(body),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: HeaderRoutingKey, Value: []byte(routingKey)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		p.metrics.IncrementEventPublished(routingKey, false)
		p.logger.ErrorContext(ctx, "event publish failed",
			"topic", p.topic,
			"routing_key", routingKey,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.Wrap(err, dErrors.CodePublishFailure, "failed to publish event")
	}
	p.metrics.IncrementEventPublished(routingKey, true)
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}

// partitionKey pulls reservationId out of an encoded event.
func partitionKey(body []byte) []byte {
	var probe struct {
		ReservationID string `json:"reservationId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.ReservationID == "" {
		return nil
	}
	return []byte(probe.ReservationID)
}
