package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"marketslip/internal/slip/models"
	dErrors "marketslip/pkg/domain-errors"
)

// fakeBroker mimics broker-side state: declarations are sets, so repeating
// them changes nothing.
type fakeBroker struct {
	mu        sync.Mutex
	exchanges map[string]string
	queues    map[string]bool
	bindings  map[string]bool
	published []amqp.Publishing
	keys      []string

	queueDeclares int

	failChannel bool
	failPublish bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		exchanges: make(map[string]string),
		queues:    make(map[string]bool),
		bindings:  make(map[string]bool),
	}
}

type fakeConn struct {
	broker *fakeBroker
	closed atomic.Bool
}

func (c *fakeConn) Channel() (Channel, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.broker.failChannel {
		return nil, amqp.ErrClosed
	}
	return &fakeChannel{broker: c.broker, conn: c}, nil
}

func (c *fakeConn) IsClosed() bool { return c.closed.Load() }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeChannel struct {
	broker *fakeBroker
	conn   *fakeConn
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	if !durable {
		return errors.New("exchange must be durable")
	}
	ch.broker.exchanges[name] = kind
	return nil
}

func (ch *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	ch.broker.queues[name] = true
	ch.broker.queueDeclares++
	return amqp.Queue{Name: name}, nil
}

func (ch *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	ch.broker.bindings[exchange+"|"+key+"|"+name] = true
	return nil
}

func (ch *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	if ch.broker.failPublish {
		ch.conn.closed.Store(true)
		return amqp.ErrClosed
	}
	ch.broker.published = append(ch.broker.published, msg)
	ch.broker.keys = append(ch.broker.keys, key)
	return nil
}

func (ch *fakeChannel) Close() error { return nil }

type AMQPPublisherSuite struct {
	suite.Suite
	ctx       context.Context
	broker    *fakeBroker
	dials     atomic.Int32
	dialErr   error
	conns     *ConnectionManager
	publisher *AMQPPublisher
}

func TestAMQPPublisherSuite(t *testing.T) {
	suite.Run(t, new(AMQPPublisherSuite))
}

func (s *AMQPPublisherSuite) SetupTest() {
	s.ctx = context.Background()
	s.broker = newFakeBroker()
	s.dials.Store(0)
	s.dialErr = nil
	s.conns = NewConnectionManager("amqp://test", func(string) (Connection, error) {
		s.dials.Add(1)
		if s.dialErr != nil {
			return nil, s.dialErr
		}
		return &fakeConn{broker: s.broker}, nil
	})
	s.publisher = NewAMQPPublisher(s.conns, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *AMQPPublisherSuite) TestEnsureTopologyIsIdempotent() {
	s.Require().NoError(s.publisher.EnsureTopology(s.ctx))
	s.Require().NoError(s.publisher.EnsureTopology(s.ctx))

	s.Equal(map[string]string{ExchangeVendorReservation: amqp.ExchangeTopic}, s.broker.exchanges)
	s.Equal(map[string]bool{QueueReservationStatus: true}, s.broker.queues)
	s.Len(s.broker.bindings, 1)
	s.True(s.broker.bindings[ExchangeVendorReservation+"|"+RoutingKeyReservationStatus+"|"+QueueReservationStatus])
	s.EqualValues(1, s.dials.Load(), "connection is reused")
}

func (s *AMQPPublisherSuite) TestPublishPersistentJSON() {
	event := BuildStatusEvent(StatusChange{MarketID: "M1", ReservationID: "R1", SlipID: "S1", Status: models.StatusValidateSlip})
	s.Require().NoError(s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, event))

	s.Require().Len(s.broker.published, 1)
	msg := s.broker.published[0]
	s.Equal(amqp.Persistent, msg.DeliveryMode)
	s.Equal("application/json", msg.ContentType)
	s.NotEmpty(msg.MessageId)
	s.Equal(RoutingKeyReservationStatus, s.broker.keys[0])

	var body map[string]any
	s.Require().NoError(json.Unmarshal(msg.Body, &body))
	s.Equal(map[string]any{
		"event":                   "UPDATE_RESERVATION_STATUS",
		"reservationId":           "R1",
		"marketId":                "M1",
		"vendorReservationStatus": "ValidateSlip",
		"slipId":                  "S1",
	}, body)
}

func (s *AMQPPublisherSuite) TestPublishDeclaresTopologyAfterFailedStartup() {
	s.dialErr = errors.New("connection refused")
	s.Require().Error(s.publisher.EnsureTopology(s.ctx))

	s.dialErr = nil
	s.Require().NoError(s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 1}))

	s.Equal(map[string]bool{QueueReservationStatus: true}, s.broker.queues)
	s.True(s.broker.bindings[ExchangeVendorReservation+"|"+RoutingKeyReservationStatus+"|"+QueueReservationStatus])
	s.Len(s.broker.published, 1)
}

func (s *AMQPPublisherSuite) TestTopologyDeclaredOncePerConnection() {
	s.Require().NoError(s.publisher.EnsureTopology(s.ctx))
	s.Require().NoError(s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 1}))
	s.Require().NoError(s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 2}))
	s.Equal(1, s.broker.queueDeclares)

	// A fresh broker comes back empty; the redialled connection declares again.
	s.broker.mu.Lock()
	s.broker.failPublish = true
	s.broker.mu.Unlock()
	s.Require().Error(s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 3}))

	s.broker.mu.Lock()
	s.broker.failPublish = false
	s.broker.queues = make(map[string]bool)
	s.broker.bindings = make(map[string]bool)
	s.broker.mu.Unlock()
	s.Require().NoError(s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 4}))

	s.Equal(2, s.broker.queueDeclares)
	s.True(s.broker.queues[QueueReservationStatus])
	s.Len(s.broker.bindings, 1)
}

func (s *AMQPPublisherSuite) TestPublishWithoutBrokerFails() {
	s.dialErr = errors.New("connection refused")
	err := s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"a": 1})
	s.True(dErrors.HasCode(err, dErrors.CodePublishFailure))
}

func (s *AMQPPublisherSuite) TestClosedConnectionIsReestablished() {
	s.Require().NoError(s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 1}))

	s.broker.mu.Lock()
	s.broker.failPublish = true
	s.broker.mu.Unlock()
	err := s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 2})
	s.True(dErrors.HasCode(err, dErrors.CodePublishFailure))

	s.broker.mu.Lock()
	s.broker.failPublish = false
	s.broker.mu.Unlock()
	s.Require().NoError(s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 3}))

	s.EqualValues(2, s.dials.Load())
	s.Len(s.broker.published, 2)
}

func (s *AMQPPublisherSuite) TestChannelFailureInvalidatesConnection() {
	s.broker.failChannel = true
	err := s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 1})
	s.True(dErrors.HasCode(err, dErrors.CodePublishFailure))

	s.broker.failChannel = false
	s.Require().NoError(s.publisher.Publish(s.ctx, RoutingKeyReservationStatus, map[string]any{"n": 2}))
	s.EqualValues(2, s.dials.Load())
}

func (s *AMQPPublisherSuite) TestShutdownThenAcquireRedials() {
	_, err := s.conns.Acquire(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.publisher.Close())

	_, err = s.conns.Acquire(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(2, s.dials.Load())
}

func TestConnectionManagerConcurrentAcquireDialsOnce(t *testing.T) {
	var dials atomic.Int32
	broker := newFakeBroker()
	m := NewConnectionManager("amqp://test", func(string) (Connection, error) {
		dials.Add(1)
		return &fakeConn{broker: broker}, nil
	})

	var wg sync.WaitGroup
	conns := make([]Connection, 32)
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.Acquire(context.Background())
			assert.NoError(t, err)
			conns[i] = c
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, dials.Load())
	for _, c := range conns {
		assert.Same(t, conns[0], c)
	}
}

func TestConnectionManagerHonoursCancelledContext(t *testing.T) {
	m := NewConnectionManager("amqp://test", func(string) (Connection, error) {
		t.Fatal("dial must not run")
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
