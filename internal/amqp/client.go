// Package amqp publishes run notifications to a RabbitMQ exchange.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"cloudspend/internal/core"
	"cloudspend/internal/events"
	"cloudspend/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxRetries     = 3
	publishTimeout = 5 * time.Second
)

// ErrCircuitOpen is returned by Publish while the broker is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config describes where run notifications go.
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string // defaults to Queue
	Queue      string // optional; bound to the exchange with RoutingKey
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(c.Exchange) == "" {
		missing = append(missing, "exchange")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: amqp %s required", core.ErrConfigMissing, strings.Join(missing, " and "))
	}
	return nil
}

func (c Config) routingKey() string {
	if c.RoutingKey != "" {
		return c.RoutingKey
	}
	return c.Queue
}

// Client publishes persistent JSON deliveries, reconnecting on connection
// errors and failing fast while the broker keeps refusing.
type Client struct {
	url          string
	exchangeName string
	routingKey   string
	queueName    string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

var _ events.Publisher = (*Client)(nil)

// NewClient dials the broker and declares the exchange.
func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	c, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// newClient builds an unconnected client; the first publish dials.
func newClient(cfg Config, logger *log.Logger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		url:          cfg.URL,
		exchangeName: cfg.Exchange,
		routingKey:   cfg.routingKey(),
		queueName:    cfg.Queue,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil && !c.channel.IsClosed() {
		return nil
	}

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	c.conn, c.channel = conn, channel
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if c.queueName == "" {
		return nil
	}

	_, err = ch.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(c.queueName, c.routingKey, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish sends msg to the exchange with the configured routing key.
func (c *Client) Publish(ctx context.Context, msg events.RunCompleted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("%w: broker unavailable since %s", ErrCircuitOpen, c.lastFailure.Format(time.RFC3339))
	}

	d, err := delivery(msg)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err = c.publish(ctx, d)
		if err == nil {
			c.recordSuccess()
			c.logger.InfoContext(ctx, "Published run notification",
				log.FieldRunID, msg.RunID,
				"exchange", c.exchangeName,
				"routing_key", c.routingKey)
			return nil
		}
		c.recordFailure()
		if !isConnectionError(err) || attempt+1 >= maxRetries {
			return fmt.Errorf("publish message: %w", err)
		}

		c.logger.WarnContext(ctx, "Publish failed, reconnecting",
			log.FieldRunID, msg.RunID, "attempt", attempt+1, log.FieldError, err)
		c.reset()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(exponentialBackoff(attempt)):
		}
	}
}

// delivery builds the persistent JSON publishing for msg.
func delivery(msg events.RunCompleted) (amqp091.Publishing, error) {
	body, err := events.Encode(msg)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.RunID,
		Type:         events.RunCompletedType,
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}

func (c *Client) publish(ctx context.Context, d amqp091.Publishing) error {
	if err := c.connect(); err != nil {
		return err
	}
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		d,
	)
}

func (c *Client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	if time.Since(c.lastFailure) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.lastFailure = time.Now()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff doubles from one second, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	return time.Duration(1<<attempt) * time.Second
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
