package messagebroker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Message is the broker-agnostic view of a delivered message.
type Message interface {
	Subject() string
	Data() []byte
}

// Subscription is a handle to an active subscription.
type Subscription interface {
	Unsubscribe() error
}

// MessageBus abstracts the at-least-once delivery channel used between
// services. Consumers must be idempotent: redelivery is possible.
type MessageBus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject, queueGroup string, handler func(msg Message)) (Subscription, error)
}

// NATSClient wraps a core NATS connection.
type NATSClient struct {
	conn   *nats.Conn
	logger *slog.Logger
}

type natsMessage struct{ msg *nats.Msg }

func (m natsMessage) Subject() string { return m.msg.Subject }
func (m natsMessage) Data() []byte    { return m.msg.Data }

// NewNATSClient connects to NATS with reconnect handling.
func NewNATSClient(natsURL string, logger *slog.Logger, appName string) (*NATSClient, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(appName),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Error("NATS connection closed", "error", nc.LastError())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSClient{conn: nc, logger: logger}, nil
}

// Publish sends data to the given subject.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe creates a queue subscription. Messages are delivered to handler
// until the subscription is unsubscribed or the connection closes.
func (c *NATSClient) Subscribe(ctx context.Context, subject, queueGroup string, handler func(msg Message)) (Subscription, error) {
	sub, err := c.conn.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
		handler(natsMessage{msg: msg})
	})
	if err != nil {
		return nil, fmt.Errorf("nats queue subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains pending messages and closes the connection.
func (c *NATSClient) Close() {
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Drain(); err != nil {
			c.logger.Warn("NATS drain failed", "error", err)
		}
		c.conn.Close()
	}
}
