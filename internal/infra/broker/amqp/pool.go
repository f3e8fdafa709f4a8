package amqp

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	errPoolClosed = errors.New("amqp: channel pool closed")
	errConnClosed = errors.New("amqp: connection closed")
)

// ChannelPool bounds the number of open channels; permits counts idle plus borrowed ones.
type ChannelPool struct {
	conn    *amqp.Connection
	idle    chan *amqp.Channel
	permits chan struct{}
	delay   time.Duration
	closed  atomic.Bool
}

func NewChannelPool(conn *amqp.Connection, capacity int, retryDelay time.Duration) *ChannelPool {
	if capacity <= 0 {
		capacity = 8
	}
	if retryDelay <= 0 {
		retryDelay = 50 * time.Millisecond
	}
	return &ChannelPool{
		conn:    conn,
		idle:    make(chan *amqp.Channel, capacity),
		permits: make(chan struct{}, capacity),
		delay:   retryDelay,
	}
}

func (p *ChannelPool) Borrow(ctx context.Context) (*amqp.Channel, error) {
	for {
		if p.closed.Load() {
			return nil, errPoolClosed
		}
		if p.conn.IsClosed() {
			return nil, errConnClosed
		}
		select {
		case ch := <-p.idle:
			if ch != nil && !ch.IsClosed() {
				return ch, nil
			}
			p.release()
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ch := <-p.idle:
			if ch != nil && !ch.IsClosed() {
				return ch, nil
			}
			p.release()
		case p.permits <- struct{}{}:
			ch, err := p.conn.Channel()
			if err == nil {
				return ch, nil
			}
			p.release()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.delay):
			}
		}
	}
}

func (p *ChannelPool) Return(ch *amqp.Channel) {
	if ch == nil {
		return
	}
	if p.closed.Load() || ch.IsClosed() {
		_ = ch.Close()
		p.release()
		return
	}
	select {
	case p.idle <- ch:
	default:
		_ = ch.Close()
		p.release()
	}
}

func (p *ChannelPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	for {
		select {
		case ch := <-p.idle:
			if ch != nil {
				_ = ch.Close()
			}
			p.release()
		default:
			return
		}
	}
}

func (p *ChannelPool) release() {
	select {
	case <-p.permits:
	default:
	}
}
