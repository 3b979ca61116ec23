//go:build integration

package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"marketslip/internal/slip/models"
	"marketslip/pkg/testutil/containers"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAMQPPublisherAgainstRabbitMQ(t *testing.T) {
	rmq := containers.NewRabbitMQContainer(t)
	ctx := context.Background()

	publisher := NewAMQPPublisher(NewConnectionManager(rmq.URL, DialAMQP), WithLogger(quietLogger()))
	t.Cleanup(func() { _ = publisher.Close() })

	require.NoError(t, publisher.EnsureTopology(ctx))
	require.NoError(t, publisher.EnsureTopology(ctx))

	notifier := NewStatusNotifier(publisher)
	require.NoError(t, notifier.PublishStatusChange(ctx, StatusChange{
		MarketID: "M1", ReservationID: "R1", SlipID: "S1", Status: models.StatusValidateSlip,
	}, nil))

	conn, err := amqp.Dial(rmq.URL)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	var msg amqp.Delivery
	require.Eventually(t, func() bool {
		d, ok, err := ch.Get(QueueReservationStatus, true)
		if err != nil || !ok {
			return false
		}
		msg = d
		return true
	}, 10*time.Second, 100*time.Millisecond)

	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	var event models.ReservationStatusEvent
	require.NoError(t, json.Unmarshal(msg.Body, &event))
	assert.Equal(t, "R1", event.ReservationID)
	assert.Equal(t, models.StatusValidateSlip, event.Status)
}

func TestKafkaPublisherAgainstRedpanda(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx := context.Background()

	publisher, err := NewKafkaPublisher(rp.Brokers, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })

	require.NoError(t, publisher.EnsureTopology(ctx))
	require.NoError(t, publisher.EnsureTopology(ctx))

	require.NoError(t, NewStatusNotifier(publisher).PublishStatusChange(ctx, StatusChange{
		MarketID: "M1", ReservationID: "R7", Status: models.StatusValidateSlip,
	}, nil))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(ExchangeVendorReservation),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.Empty(t, fetches.Errors())

	records := fetches.Records()
	require.NotEmpty(t, records)
	assert.Equal(t, []byte("R7"), records[0].Key)
	require.NotEmpty(t, records[0].Headers)
	assert.Equal(t, HeaderRoutingKey, records[0].Headers[0].Key)
	assert.Equal(t, RoutingKeyReservationStatus, string(records[0].Headers[0].Value))
}
