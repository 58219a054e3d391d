package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TopicConfig describes one logical topic: a queue bound to the shared
// exchange under a routing key.
type TopicConfig struct {
	Name       string
	Queue      string
	RoutingKey string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	Topics             []TopicConfig
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
	ChannelPoolSize    int
}

// Client represents a RabbitMQ client. Publishing goes through a pool of
// channels acquired per operation and released after use; a channel is
// never shared between concurrent publishers.
type Client struct {
	config *Config
	logger *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	pool   chan *amqp.Channel
	topics map[string]TopicConfig
	closed bool
}

// NewClient creates a new RabbitMQ client, declares the exchange and every
// configured topic, and fills the publish channel pool.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
		topics: make(map[string]TopicConfig, len(config.Topics)),
	}

	for _, t := range config.Topics {
		client.topics[t.Name] = t
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic. Caller must
// hold no locks; connect takes c.mu itself.
func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	if err := c.setup(); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queues: %w", err)
	}

	poolSize := c.config.ChannelPoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	c.pool = make(chan *amqp.Channel, poolSize)
	for i := 0; i < poolSize; i++ {
		// Slots start empty; acquire opens channels lazily
		c.pool <- nil
	}

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.Int("topics", len(c.topics)),
		slog.Int("channel_pool_size", poolSize),
	)

	return nil
}

// setup declares the exchange and every topic queue with its binding.
// Caller must hold c.mu.
func (c *Client) setup() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open setup channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		c.config.ExchangeName,
		c.config.ExchangeType,
		c.config.ExchangeDurable,
		c.config.ExchangeAutoDelete,
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	for _, t := range c.topics {
		_, err = ch.QueueDeclare(
			t.Queue,
			t.Durable,
			t.AutoDelete,
			t.Exclusive,
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", t.Queue, err)
		}

		err = ch.QueueBind(
			t.Queue,
			t.RoutingKey,
			c.config.ExchangeName,
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", t.Queue, err)
		}
	}

	return nil
}

// acquire takes a publish channel from the pool, opening a fresh one if the
// pooled slot is empty or its channel has died.
func (c *Client) acquire(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	conn, pool, closed := c.conn, c.pool, c.closed
	c.mu.Unlock()

	if closed || conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	select {
	case ch := <-pool:
		if ch != nil && !ch.IsClosed() {
			return ch, nil
		}
		return conn.Channel()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns a channel to the pool. Dead channels are dropped; the
// slot is refilled empty so acquire opens a replacement.
func (c *Client) release(ch *amqp.Channel) {
	if ch != nil && ch.IsClosed() {
		ch = nil
	}

	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()

	select {
	case pool <- ch:
	default:
		if ch != nil {
			ch.Close()
		}
	}
}

// Publish publishes a persistent message to the named topic.
func (c *Client) Publish(ctx context.Context, topic string, body []byte, contentType string) error {
	t, ok := c.topics[topic]
	if !ok {
		return fmt.Errorf("unknown topic %q", topic)
	}

	ch, err := c.acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire publish channel: %w", err)
	}
	defer c.release(ch)

	err = ch.PublishWithContext(
		ctx,
		c.config.ExchangeName,
		t.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("topic", topic),
		slog.Int("body_size", len(body)),
	)

	return nil
}

// PublishWithRetry publishes with exponential backoff on transient failures.
func (c *Client) PublishWithRetry(ctx context.Context, topic string, body []byte, contentType string) error {
	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.Publish(ctx, topic, body, contentType)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Published message to RabbitMQ after retry",
					slog.String("topic", topic),
					slog.Int("attempt", attempt+1),
				)
			}
			return nil
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}

		if attempt < maxRetries {
			backoffDelay := time.Duration(float64(baseDelay) * float64(uint(1)<<uint(attempt)))
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.String("topic", topic),
				slog.Int("attempt", attempt+1),
				slog.Duration("retry_after", backoffDelay),
				slog.Any("error", err),
			)

			select {
			case <-time.After(backoffDelay):
			case <-ctx.Done():
				return fmt.Errorf("publish canceled: %w", ctx.Err())
			}
		}
	}

	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// Consume opens a dedicated channel with the given prefetch and starts
// consuming the topic's queue. Acknowledgment is the caller's
// responsibility; deliveries are never auto-acked.
func (c *Client) Consume(topic, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	t, ok := c.topics[topic]
	if !ok {
		return nil, fmt.Errorf("unknown topic %q", topic)
	}

	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	if closed || conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consume channel: %w", err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	deliveries, err := ch.Consume(
		t.Queue,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("topic", topic),
		slog.String("queue", t.Queue),
		slog.String("consumer_tag", consumerTag),
	)

	return deliveries, nil
}

// EnsureConnected redials the broker if the connection has been lost.
func (c *Client) EnsureConnected() error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	if closed {
		return fmt.Errorf("rabbitmq client is closed")
	}

	if conn != nil && !conn.IsClosed() {
		return nil
	}

	c.logger.Warn("RabbitMQ connection lost, reconnecting")
	return c.connect()
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.conn != nil && !c.conn.IsClosed()
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.pool != nil {
	drain:
		for {
			select {
			case ch := <-c.pool:
				if ch != nil {
					ch.Close()
				}
			default:
				break drain
			}
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	return nil
}
