package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("publish queue full")
	ErrQueueClosed = errors.New("publish queue closed")
)

// Async hands publishes to a single worker so the caller never waits on the
// broker. Messages go out in the order they were queued; failures are logged
// and dropped.
type Async struct {
	next    Publisher
	queue   chan Record
	quit    chan struct{}
	once    sync.Once
	timeout time.Duration
	log     *zap.Logger
}

var _ Publisher = (*Async)(nil)

// AsyncOption configures an Async publisher.
type AsyncOption func(*Async)

// WithLogger sets the logger used for dropped and failed publishes.
func WithLogger(l *zap.Logger) AsyncOption {
	return func(a *Async) { a.log = l }
}

// WithQueueSize sets how many messages may wait for the worker.
func WithQueueSize(n int) AsyncOption {
	return func(a *Async) { a.queue = make(chan Record, n) }
}

// WithTimeout bounds each publish to the wrapped publisher.
func WithTimeout(d time.Duration) AsyncOption {
	return func(a *Async) { a.timeout = d }
}

// NewAsync wraps next. Call Run to start publishing.
func NewAsync(next Publisher, opts ...AsyncOption) *Async {
	a := &Async{
		next:    next,
		queue:   make(chan Record, 256),
		quit:    make(chan struct{}),
		timeout: 5 * time.Second,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Publish queues the message and returns at once. The payload is copied.
func (a *Async) Publish(_ context.Context, topic string, payload []byte) error {
	select {
	case <-a.quit:
		return ErrQueueClosed
	default:
	}
	select {
	case a.queue <- Record{Topic: topic, Payload: append([]byte(nil), payload...)}:
		return nil
	default:
		a.log.Warn("publish queue full, dropping message", zap.String("topic", topic))
		return ErrQueueFull
	}
}

// Run publishes queued messages until ctx is cancelled or Close is called.
// After Close, messages already queued are still published.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-a.queue:
			a.publish(ctx, r)
		case <-a.quit:
			for {
				select {
				case r := <-a.queue:
					a.publish(ctx, r)
				default:
					return nil
				}
			}
		}
	}
}

// Close stops accepting messages. It does not close the wrapped publisher.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.quit) })
	return nil
}

func (a *Async) publish(ctx context.Context, r Record) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.next.Publish(ctx, r.Topic, r.Payload); err != nil {
		a.log.Warn("publish error", zap.String("topic", r.Topic), zap.Error(err))
	}
}
