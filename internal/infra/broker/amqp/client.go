package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	URL         string
	Exchange    string
	Producer    string
	PoolSize    int
	DialTimeout time.Duration
	RetryDelay  time.Duration
}

// Client owns one AMQP connection and a pool of publishing channels.
type Client struct {
	conn   *amqp.Connection
	pool   *ChannelPool
	cfg    Config
	logger *slog.Logger
}

func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp: url is required")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("amqp: exchange is required")
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if logger != nil {
		host := ""
		if u, err := url.Parse(cfg.URL); err == nil {
			host = u.Host
		}
		logger.Info("connecting to rabbitmq", "host", host, "exchange", cfg.Exchange)
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %q: %w", cfg.Exchange, err)
	}
	_ = ch.Close()

	return &Client{conn: conn, pool: NewChannelPool(conn, cfg.PoolSize, cfg.RetryDelay), cfg: cfg, logger: logger}, nil
}

// Publish sends one persistent message on the configured exchange.
func (c *Client) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	ch, err := c.pool.Borrow(ctx)
	if err != nil {
		return fmt.Errorf("amqp: borrow channel: %w", err)
	}
	defer c.pool.Return(ch)
	return ch.PublishWithContext(ctx, c.cfg.Exchange, routingKey, false, false, msg)
}

// Ping reports whether the connection is still open.
func (c *Client) Ping(context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return errConnClosed
	}
	return nil
}

func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
