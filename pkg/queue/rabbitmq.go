// Package queue publishes JSON events to a RabbitMQ topic exchange with
// publisher confirms.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/glamgo/marketplace/config"
)

// publishTimeout bounds a single publish plus its broker confirm.
const publishTimeout = 5 * time.Second

// Client owns one AMQP connection and a confirm-mode publishing channel.
// A dropped connection is re-dialed on the next publish.
type Client struct {
	url      string
	exchange string
	logger   *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// confirmWaiter is satisfied by *amqp.DeferredConfirmation.
type confirmWaiter interface {
	WaitContext(ctx context.Context) (bool, error)
}

// Connect dials RabbitMQ, declares the exchange and enables confirms.
func Connect(ctx context.Context, cfg config.RabbitMQConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{
		url:      cfg.URL(),
		exchange: cfg.Exchange,
		logger:   logger.Named("rabbitmq"),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: declare exchange %s: %w", c.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	c.conn = conn
	c.ch = ch
	c.logger.Info("connected", zap.String("exchange", c.exchange))
	return nil
}

// PublishJSON marshals v and publishes it persistently under routingKey,
// waiting for the broker's confirm of this message's delivery tag.
func (c *Client) PublishJSON(ctx context.Context, routingKey string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal %s: %w", routingKey, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	if c.conn == nil || c.conn.IsClosed() || c.ch == nil || c.ch.IsClosed() {
		c.logger.Warn("connection lost, redialing")
		if err := c.connectLocked(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(pubCtx, c.exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now(),
		Body:         body,
	})
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", routingKey, err)
	}
	if dc == nil {
		return errors.New("rabbitmq: channel is not in confirm mode")
	}
	return waitConfirm(pubCtx, dc, routingKey)
}

// waitConfirm blocks until the broker acks or nacks one publish. A confirm
// that arrives after ctx is done belongs to its own publish and is dropped.
func waitConfirm(ctx context.Context, dc confirmWaiter, routingKey string) error {
	ack, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq: waiting for confirm of %s: %w", routingKey, err)
	}
	if !ack {
		return fmt.Errorf("rabbitmq: publish %s not acknowledged", routingKey)
	}
	return nil
}

// HealthCheck reports whether the connection is open.
func (c *Client) HealthCheck() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq: connection closed")
	}
	return nil
}

// Close shuts the channel and connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
