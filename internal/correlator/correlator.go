package correlator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-callback-bot/internal/ami"
	"github.com/sweeney/asterisk-callback-bot/internal/messenger"
	"github.com/sweeney/asterisk-callback-bot/internal/registry"
	"github.com/sweeney/asterisk-callback-bot/internal/render"
)

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Dialer places the operator-then-customer call. It must not block for long;
// the returned ActionID correlates the asynchronous outcome.
type Dialer interface {
	Originate(ctx context.Context, customer, extension string) (actionID string, err error)
}

// Deps are the collaborators of a Correlator.
type Deps struct {
	ChatID    int64
	Renderer  render.Renderer
	Messenger messenger.Messenger
	Dialer    Dialer
	Registry  *registry.Registry
}

// Correlator ties missed-call notices, operator selections and telephony
// events into one lifecycle per (customer, extension) pair, and keeps the
// chat message of each pair up to date.
//
// Process must only be called from one goroutine at a time; Run provides
// that by draining a single queue.
type Correlator struct {
	chatID  int64
	render  render.Renderer
	chat    messenger.Messenger
	dialer  Dialer
	calls   *registry.Registry
	pending map[string]registry.CallKey // originate ActionID -> attempt
	events  chan Event
	clock   Clock
	log     *zap.Logger
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithClock sets the time source for the correlator.
func WithClock(c Clock) Option {
	return func(corr *Correlator) { corr.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(corr *Correlator) { corr.log = l }
}

// WithQueueSize sets the capacity of the event queue used by Run.
func WithQueueSize(n int) Option {
	return func(corr *Correlator) { corr.events = make(chan Event, n) }
}

// New creates a Correlator.
func New(deps Deps, opts ...Option) *Correlator {
	calls := deps.Registry
	if calls == nil {
		calls = registry.New()
	}
	c := &Correlator{
		chatID:  deps.ChatID,
		render:  deps.Renderer,
		chat:    deps.Messenger,
		dialer:  deps.Dialer,
		calls:   calls,
		pending: make(map[string]registry.CallKey),
		events:  make(chan Event, 128),
		clock:   time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the table of live attempts.
func (c *Correlator) Registry() *registry.Registry {
	return c.calls
}

// Submit queues evt for Run. It blocks while the queue is full.
func (c *Correlator) Submit(ctx context.Context, evt Event) error {
	select {
	case c.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued events one at a time until ctx is cancelled, passing
// every resulting transition to onChange.
func (c *Correlator) Run(ctx context.Context, onChange func(Transition)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-c.events:
			for _, t := range c.Process(ctx, evt) {
				if onChange != nil {
					onChange(t)
				}
			}
		}
	}
}

// Process handles a single event and returns any resulting transitions.
func (c *Correlator) Process(ctx context.Context, evt Event) []Transition {
	switch e := evt.(type) {
	case MissedCall:
		return c.handleMissedCall(ctx, e)
	case Selection:
		return c.handleSelection(ctx, e)
	case Telephony:
		return c.handleTelephony(ctx, e.Event)
	default:
		return nil
	}
}

func (c *Correlator) handleMissedCall(ctx context.Context, e MissedCall) []Transition {
	customer := render.NormalizeNumber(e.Customer)
	text := render.MissedCallNotice(customer, e.WaitSeconds)

	if err := c.chat.Send(ctx, c.chatID, text, c.render.Keyboard(customer, false)); err != nil {
		c.log.Warn("sending missed call notice", zap.String("customer", customer), zap.Error(err))
	}
	c.log.Info("missed call notice sent", zap.String("customer", customer), zap.Int("wait_seconds", e.WaitSeconds))

	return []Transition{{State: StateMissed, Key: registry.CallKey{Customer: customer}, Timestamp: c.clock()}}
}

func (c *Correlator) handleSelection(ctx context.Context, e Selection) []Transition {
	sel, err := render.ParseSelection(e.Data, e.MessageText)
	if err != nil {
		c.log.Warn("ignoring keyboard selection", zap.String("data", e.Data),
			zap.Stringer("message", e.Message), zap.Error(err))
		c.answer(ctx, e.InteractionID, "Unable to read the customer number")
		return nil
	}

	if sel.Refresh {
		c.answer(ctx, e.InteractionID, "")
		if err := c.chat.EditKeyboard(ctx, e.Message, c.render.Keyboard(sel.Customer, false)); err != nil {
			c.log.Warn("refreshing keyboard", zap.Stringer("message", e.Message), zap.Error(err))
		}
		return nil
	}

	key := registry.CallKey{Customer: sel.Customer, Extension: sel.Extension}
	if _, busy := c.calls.Get(key); busy {
		c.log.Info("callback already in progress", zap.Stringer("key", key))
		c.answer(ctx, e.InteractionID, "Already dialing +"+sel.Customer+"...")
		return nil
	}
	// The message shows one attempt at a time; a second live attempt would
	// overwrite the first one's status.
	if owner, busy := c.calls.ByMessage(e.Message); busy {
		c.log.Info("message already has a callback in progress", zap.Stringer("message", e.Message),
			zap.Stringer("owner", owner.Key), zap.Stringer("rejected", key))
		c.answer(ctx, e.InteractionID, "Already dialing +"+owner.Key.Customer+"...")
		return nil
	}

	c.answer(ctx, e.InteractionID, "Dialing +"+sel.Customer+"...")

	attempt := registry.Attempt{
		Key:       key,
		Message:   e.Message,
		BaseText:  render.Trim(e.MessageText),
		Stage:     registry.StageDialing,
		CreatedAt: c.clock(),
	}
	c.edit(ctx, attempt, render.DialingNotice(attempt.BaseText, key.Extension, key.Customer), nil)

	actionID, err := c.dialer.Originate(ctx, key.Customer, key.Extension)
	if err != nil {
		c.calls.Put(attempt)
		return []Transition{c.dialed(attempt), c.fail(ctx, attempt, err.Error())}
	}

	attempt.ActionID = actionID
	c.calls.Put(attempt)
	c.pending[actionID] = key
	c.log.Info("originating callback", zap.Stringer("key", key), zap.String("action_id", actionID))
	return []Transition{c.dialed(attempt)}
}

func (c *Correlator) dialed(a registry.Attempt) Transition {
	return Transition{State: StateDialing, Key: a.Key, Timestamp: a.CreatedAt}
}

func (c *Correlator) handleTelephony(ctx context.Context, evt ami.Event) []Transition {
	if evt.IsResponse() {
		return c.handleActionResponse(ctx, evt)
	}

	switch evt.Type() {
	case "OriginateResponse":
		return c.handleOriginateResponse(ctx, evt)
	case "Bridge":
		return c.handleBridge(ctx, evt)
	case "Hangup":
		return c.handleHangup(ctx, evt)
	default:
		return nil
	}
}

// handleActionResponse catches originate actions the manager refused
// outright, before any channel was created.
func (c *Correlator) handleActionResponse(ctx context.Context, evt ami.Event) []Transition {
	key, ok := c.pending[evt.ActionID()]
	if !ok || !strings.EqualFold(evt.Get("Response"), "Error") {
		return nil
	}
	return c.failPending(ctx, key, evt.Get("Message"))
}

func (c *Correlator) handleOriginateResponse(ctx context.Context, evt ami.Event) []Transition {
	id := evt.ActionID()
	key, ok := c.pending[id]
	if !ok {
		return nil
	}
	if strings.EqualFold(evt.Get("Response"), "Success") {
		delete(c.pending, id)
		return nil
	}
	return c.failPending(ctx, key, "originate failed, reason "+evt.Get("Reason"))
}

func (c *Correlator) failPending(ctx context.Context, key registry.CallKey, reason string) []Transition {
	a, ok := c.calls.Get(key)
	if !ok {
		return nil
	}
	return []Transition{c.fail(ctx, a, reason)}
}

// fail reports an operator leg that never came up. No hangup will follow for
// the pair, so the attempt is released here.
func (c *Correlator) fail(ctx context.Context, a registry.Attempt, reason string) Transition {
	c.log.Warn("callback origination failed", zap.Stringer("key", a.Key), zap.String("reason", reason))

	a.KeyboardVisible = true
	c.edit(ctx, a, render.OutcomeNotice(a.BaseText, render.CauseDrop, a.Key.Extension, a.Key.Customer),
		c.render.Keyboard(a.Key.Customer, false))
	c.release(a)

	return Transition{State: StateFailed, Key: a.Key, Cause: string(render.CauseDrop), Reason: reason, Timestamp: c.clock()}
}

// Bridge reports CallerID1 as the operator extension and CallerID2 as the
// customer.
func (c *Correlator) handleBridge(ctx context.Context, evt ami.Event) []Transition {
	if !strings.EqualFold(evt.Get("Bridgestate"), "Link") {
		return nil
	}

	key := registry.CallKey{
		Customer:  render.NormalizeNumber(evt.Get("CallerID2")),
		Extension: evt.Get("CallerID1"),
	}
	a, ok := c.calls.Get(key)
	if !ok {
		c.log.Debug("bridge for unknown callback", zap.Stringer("key", key))
		return nil
	}
	if a.Stage != registry.StageDialing {
		return nil
	}

	a.Stage = registry.StageBridged
	a.KeyboardVisible = false
	c.edit(ctx, a, render.OutcomeNotice(a.BaseText, render.CauseSuccess, key.Extension, key.Customer), nil)
	c.calls.Put(a)

	return []Transition{{State: StateBridged, Key: key, Cause: string(render.CauseSuccess), Timestamp: c.clock()}}
}

// Hangup reports the customer as CallerIDNum and the operator extension as
// ConnectedLineNum. Asterisk emits several hangups per call; only the first
// one finds the attempt.
func (c *Correlator) handleHangup(ctx context.Context, evt ami.Event) []Transition {
	key := registry.CallKey{
		Customer:  render.NormalizeNumber(evt.Get("CallerIDNum")),
		Extension: evt.Get("ConnectedLineNum"),
	}
	a, ok := c.calls.Get(key)
	if !ok {
		c.log.Debug("hangup for unknown callback", zap.Stringer("key", key))
		return nil
	}

	cause := render.Cause(strings.TrimSpace(evt.Get("Cause")))
	if !render.KnownCause(cause) {
		c.log.Warn("unmapped hangup cause, leaving status unchanged",
			zap.Stringer("key", key), zap.String("cause", string(cause)), zap.String("cause_txt", evt.Get("Cause-txt")))
	}

	a.Stage = registry.StageEnded
	a.KeyboardVisible = true
	extended := cause == render.CauseNormalClearing
	c.edit(ctx, a, render.OutcomeNotice(a.BaseText, cause, key.Extension, key.Customer),
		c.render.Keyboard(key.Customer, extended))
	c.release(a)

	c.log.Info("callback ended", zap.Stringer("key", key), zap.String("cause", string(cause)))
	return []Transition{{State: StateEnded, Key: key, Cause: string(cause), Timestamp: c.clock()}}
}

func (c *Correlator) release(a registry.Attempt) {
	c.calls.Remove(a.Key)
	if a.ActionID != "" {
		delete(c.pending, a.ActionID)
	}
}

func (c *Correlator) edit(ctx context.Context, a registry.Attempt, text string, kb *render.Keyboard) {
	if err := c.chat.EditText(ctx, a.Message, text, kb); err != nil {
		c.log.Warn("editing callback message", zap.Stringer("key", a.Key),
			zap.Stringer("message", a.Message), zap.Error(err))
	}
}

func (c *Correlator) answer(ctx context.Context, interactionID, text string) {
	if interactionID == "" {
		return
	}
	if err := c.chat.Answer(ctx, interactionID, text); err != nil {
		c.log.Warn("answering keyboard selection", zap.Error(err))
	}
}

// ActiveCalls returns the number of attempts currently being tracked.
func (c *Correlator) ActiveCalls() int {
	return c.calls.Len()
}
