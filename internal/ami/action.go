package ami

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Action is a request sent to the manager interface.
type Action struct {
	headers []header
}

// NewAction creates an action with the given name and alternating header
// keys and values.
func NewAction(name string, kvs ...string) Action {
	return Action{headers: append([]header{{Key: "Action", Value: name}}, pairs(kvs)...)}
}

// Name returns the Action header.
func (a Action) Name() string {
	return a.Get("Action")
}

// Get returns the first value for key, or "".
func (a Action) Get(key string) string {
	return Event{headers: a.headers}.Get(key)
}

// Encode renders the action in AMI wire format.
func (a Action) Encode() []byte {
	return encode(a.headers)
}

// Sender writes actions to a manager connection.
type Sender interface {
	Send(a Action) error
}

// OriginateOptions are the dialplan parameters of a callback.
type OriginateOptions struct {
	ChannelPrefix string        // prepended to the operator extension, e.g. "SIP/"
	Context       string        // dialplan context the customer number is dialed in
	CallerID      string        // caller ID shown on the operator's phone
	Timeout       time.Duration // how long the operator phone rings
	Priority      int
}

// Originator places two-leg calls: the operator channel first, then the
// customer number through the dialplan once the operator answers.
type Originator struct {
	sender Sender
	opts   OriginateOptions
	newID  func() string
}

// NewOriginator creates an Originator sending through s.
func NewOriginator(s Sender, opts OriginateOptions) *Originator {
	if opts.Priority == 0 {
		opts.Priority = 1
	}
	return &Originator{sender: s, opts: opts, newID: uuid.NewString}
}

// Originate queues an asynchronous Originate action and returns its
// ActionID. The outcome arrives later as an OriginateResponse event carrying
// the same ActionID.
func (o *Originator) Originate(ctx context.Context, customer, extension string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := o.newID()
	a := NewAction("Originate",
		"ActionID", id,
		"Channel", o.opts.ChannelPrefix+extension,
		"Context", o.opts.Context,
		"Exten", customer,
		"Priority", strconv.Itoa(o.opts.Priority),
		"CallerID", o.opts.CallerID,
		"Timeout", strconv.FormatInt(o.opts.Timeout.Milliseconds(), 10),
		"Async", "true",
	)
	if err := o.sender.Send(a); err != nil {
		return "", fmt.Errorf("originate %s -> %s: %w", extension, customer, err)
	}
	return id, nil
}
