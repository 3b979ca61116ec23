package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection is the part of an AMQP connection the publisher relies on.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Channel is the part of an AMQP channel the publisher relies on.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP connects with amqp091-go.
func DialAMQP(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{Connection: conn}, nil
}

// ConnectionManager owns the single process-wide broker connection. Acquire
// dials lazily and redials once the cached connection has closed; the mutex
// keeps concurrent callers from dialing twice. It also remembers whether the
// topology was declared over the cached connection; every redial clears that.
type ConnectionManager struct {
	mu       sync.Mutex
	url      string
	dial     Dialer
	conn     Connection
	declared bool
}

func NewConnectionManager(url string, dial Dialer) *ConnectionManager {
	if dial == nil {
		dial = DialAMQP
	}
	return &ConnectionManager{url: url, dial: dial}
}

// Acquire returns a live connection, dialing if needed.
func (m *ConnectionManager) Acquire(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn, nil
	}
	conn, err := m.dial(m.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	m.conn = conn
	m.declared = false
	return conn, nil
}

// TopologyDeclared reports whether the topology was declared over conn.
func (m *ConnectionManager) TopologyDeclared(conn Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.declared && m.conn == conn
}

// MarkTopologyDeclared records a successful declaration over conn. It is a
// no-op when conn is no longer the cached connection.
func (m *ConnectionManager) MarkTopologyDeclared(conn Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil && m.conn == conn {
		m.declared = true
	}
}

// Invalidate drops conn if it is still the cached one, so the next Acquire
// redials.
func (m *ConnectionManager) Invalidate(conn Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil && m.conn == conn {
		_ = m.conn.Close()
		m.conn = nil
		m.declared = false
	}
}

// Shutdown closes the cached connection. A later Acquire dials again.
func (m *ConnectionManager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	m.declared = false
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("close broker connection: %w", err)
	}
	return nil
}
