package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CallbackEvent is the JSON document published for every callback lifecycle
// change.
type CallbackEvent struct {
	Event            string `json:"event"`
	Description      string `json:"description"`
	Customer         string `json:"customer"`
	Extension        string `json:"extension,omitempty"`
	Timestamp        string `json:"timestamp"`
	Cause            string `json:"cause,omitempty"`
	CauseDescription string `json:"cause_description,omitempty"`
	CauseCode        *int   `json:"cause_code,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// Topic returns prefix/callback/<customer>[/<extension>]/<event>. Missed
// calls have no extension yet.
func (e CallbackEvent) Topic(prefix string) string {
	parts := []string{prefix, "callback", e.Customer}
	if e.Extension != "" {
		parts = append(parts, e.Extension)
	}
	return strings.Join(append(parts, e.Event), "/")
}

// PublishEvent marshals e and publishes it under prefix.
func PublishEvent(ctx context.Context, p Publisher, prefix string, e CallbackEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", e.Event, err)
	}
	return p.Publish(ctx, e.Topic(prefix), data)
}

// DecodeEvent parses a payload produced by PublishEvent.
func DecodeEvent(payload []byte) (CallbackEvent, error) {
	var e CallbackEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return CallbackEvent{}, fmt.Errorf("decoding callback event: %w", err)
	}
	return e, nil
}
