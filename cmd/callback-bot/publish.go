package main

import (
	"context"
	"strconv"
	"time"

	"github.com/sweeney/asterisk-callback-bot/internal/correlator"
	"github.com/sweeney/asterisk-callback-bot/internal/publisher"
)

var stateDescriptions = map[correlator.CallState]string{
	correlator.StateMissed:  "A customer hung up before reaching an operator",
	correlator.StateDialing: "An operator chose to call the customer back",
	correlator.StateBridged: "The operator and the customer are connected",
	correlator.StateEnded:   "The callback has ended",
	correlator.StateFailed:  "The callback could not be placed",
}

// callbackEvent describes a transition for MQTT consumers.
func callbackEvent(t correlator.Transition) publisher.CallbackEvent {
	e := publisher.CallbackEvent{
		Event:       string(t.State),
		Description: stateDescriptions[t.State],
		Customer:    t.Key.Customer,
		Extension:   t.Key.Extension,
		Timestamp:   t.Timestamp.UTC().Format(time.RFC3339),
	}

	switch t.State {
	case correlator.StateEnded:
		e.Cause = "unknown"
		if code, err := strconv.Atoi(t.Cause); err == nil {
			e.CauseCode = &code
			if c, ok := correlator.HangupCause[code]; ok {
				e.Cause = c.Name
				e.CauseDescription = c.Description
			}
		}
	case correlator.StateFailed:
		e.Cause = "dropped"
		e.CauseDescription = "The operator leg could not be set up"
		e.Reason = t.Reason
	}
	return e
}

func publishTransition(ctx context.Context, pub publisher.Publisher, prefix string, t correlator.Transition) error {
	return publisher.PublishEvent(ctx, pub, prefix, callbackEvent(t))
}
