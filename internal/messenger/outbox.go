package messenger

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-callback-bot/internal/render"
)

var (
	ErrOutboxFull   = errors.New("outbox full")
	ErrOutboxClosed = errors.New("outbox closed")
)

// Outbox runs chat operations on a single worker goroutine so callers never
// wait on the chat API. Operations execute in the order they were queued.
// Failures are logged and dropped.
type Outbox struct {
	next    Messenger
	ops     chan op
	quit    chan struct{}
	once    sync.Once
	timeout time.Duration
	log     *zap.Logger
}

type op struct {
	name string
	run  func(ctx context.Context) error
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithLogger sets the logger used for failed operations.
func WithLogger(l *zap.Logger) OutboxOption {
	return func(o *Outbox) { o.log = l }
}

// WithQueueSize sets how many operations may be pending.
func WithQueueSize(n int) OutboxOption {
	return func(o *Outbox) { o.ops = make(chan op, n) }
}

// WithTimeout sets the deadline of the context each operation runs with.
// It only helps if the wrapped Messenger honours ctx or applies the same
// bound itself, as telegram.WithRequestTimeout does.
func WithTimeout(d time.Duration) OutboxOption {
	return func(o *Outbox) { o.timeout = d }
}

// NewOutbox wraps next. Call Run to start delivering.
func NewOutbox(next Messenger, opts ...OutboxOption) *Outbox {
	o := &Outbox{
		next:    next,
		ops:     make(chan op, 256),
		quit:    make(chan struct{}),
		timeout: 15 * time.Second,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run delivers queued operations until ctx is cancelled or Close is called.
// After Close, operations already queued are still delivered.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-o.ops:
			o.exec(ctx, op)
		case <-o.quit:
			for {
				select {
				case op := <-o.ops:
					o.exec(ctx, op)
				default:
					return nil
				}
			}
		}
	}
}

// Close stops accepting operations.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.quit) })
}

func (o *Outbox) exec(ctx context.Context, op op) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := op.run(ctx); err != nil {
		o.log.Warn("chat operation failed", zap.String("op", op.name), zap.Error(err))
	}
}

func (o *Outbox) enqueue(name string, run func(ctx context.Context) error) error {
	select {
	case <-o.quit:
		return ErrOutboxClosed
	default:
	}
	select {
	case o.ops <- op{name: name, run: run}:
		return nil
	default:
		o.log.Warn("chat outbox full, dropping operation", zap.String("op", name))
		return ErrOutboxFull
	}
}

func (o *Outbox) Send(_ context.Context, chatID int64, text string, kb *render.Keyboard) error {
	return o.enqueue("send", func(ctx context.Context) error {
		return o.next.Send(ctx, chatID, text, kb)
	})
}

func (o *Outbox) EditText(_ context.Context, ref MessageRef, text string, kb *render.Keyboard) error {
	return o.enqueue("edit_text", func(ctx context.Context) error {
		return o.next.EditText(ctx, ref, text, kb)
	})
}

func (o *Outbox) EditKeyboard(_ context.Context, ref MessageRef, kb *render.Keyboard) error {
	return o.enqueue("edit_keyboard", func(ctx context.Context) error {
		return o.next.EditKeyboard(ctx, ref, kb)
	})
}

func (o *Outbox) Answer(_ context.Context, interactionID, text string) error {
	return o.enqueue("answer", func(ctx context.Context) error {
		return o.next.Answer(ctx, interactionID, text)
	})
}
