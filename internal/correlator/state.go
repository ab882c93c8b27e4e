package correlator

import (
	"time"

	"github.com/sweeney/asterisk-callback-bot/internal/ami"
	"github.com/sweeney/asterisk-callback-bot/internal/messenger"
	"github.com/sweeney/asterisk-callback-bot/internal/registry"
)

// CallState names a lifecycle transition reported to observers.
type CallState string

const (
	StateMissed  CallState = "missed"
	StateDialing CallState = "dialing"
	StateBridged CallState = "bridged"
	StateEnded   CallState = "ended"
	StateFailed  CallState = "failed"
)

// Transition is emitted by the correlator whenever a callback changes state.
type Transition struct {
	State     CallState        `json:"event"`
	Key       registry.CallKey `json:"key"`
	Cause     string           `json:"cause,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Event is anything the correlator consumes.
type Event interface {
	isEvent()
}

// MissedCall is delivered by the inbound notification webhook.
type MissedCall struct {
	Customer    string
	WaitSeconds int
}

// Selection is an operator pressing a keyboard button.
type Selection struct {
	InteractionID string
	Message       messenger.MessageRef
	MessageText   string
	Data          string
}

// Telephony wraps a block read from the manager interface.
type Telephony struct {
	ami.Event
}

func (MissedCall) isEvent() {}
func (Selection) isEvent()  {}
func (Telephony) isEvent()  {}

// HangupCause maps the Asterisk hangup cause codes the bot renders to names
// and descriptions.
var HangupCause = map[int]struct {
	Name        string
	Description string
}{
	16: {"normal_clearing", "The operator and the customer finished the call normally"},
	17: {"customer_dropped", "The customer hung up or was busy"},
	21: {"call_rejected", "The customer did not answer the call"},
}
