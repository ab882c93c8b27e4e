package ami

import (
	"strconv"
	"strings"
)

// Event is one AMI message block: an event, or the response to an action.
// Headers keep their wire order.
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent creates an Event from alternating keys and values.
func NewEvent(kvs ...string) Event {
	return Event{headers: pairs(kvs)}
}

func pairs(kvs []string) []header {
	var hs []header
	for i := 0; i+1 < len(kvs); i += 2 {
		hs = append(hs, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return hs
}

// Get returns the first value for key, or "". Header names are matched
// case-insensitively since Asterisk versions disagree on casing
// (CallerID1 vs Callerid1).
func (e Event) Get(key string) string {
	for _, h := range e.headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Type returns the Event header value.
func (e Event) Type() string {
	return e.Get("Event")
}

// ActionID returns the ActionID header, set on responses and on events
// caused by an action.
func (e Event) ActionID() string {
	return e.Get("ActionID")
}

// GetInt returns the integer value for key, or 0.
func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(e.Get(key)))
	return v
}

// IsResponse reports whether this is a response to an action.
func (e Event) IsResponse() bool {
	return e.Get("Response") != "" && e.Type() == ""
}

// Len returns the number of headers.
func (e Event) Len() int {
	return len(e.headers)
}

// Encode renders the block in AMI wire format, terminated by a blank line.
func (e Event) Encode() []byte {
	return encode(e.headers)
}

func encode(hs []header) []byte {
	var b strings.Builder
	for _, h := range hs {
		b.WriteString(h.Key)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
