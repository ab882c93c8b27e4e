package publisher

import (
	"context"
	"strings"
	"sync"
)

// Record is one message handed to a MockPublisher.
type Record struct {
	Topic   string
	Payload []byte
}

// Event decodes the payload as a CallbackEvent.
func (r Record) Event() (CallbackEvent, error) {
	return DecodeEvent(r.Payload)
}

// MockPublisher keeps every publish in memory so tests can inspect the
// callback events a pipeline produced.
type MockPublisher struct {
	mu      sync.Mutex
	records []Record
	closed  bool
	err     error
	notify  chan struct{}
}

// NewMockPublisher creates an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{notify: make(chan struct{}, 1)}
}

func (m *MockPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, Record{Topic: topic, Payload: append([]byte(nil), payload...)})
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Records returns a copy of everything published so far.
func (m *MockPublisher) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Events decodes every record published under prefix/callback/, in order.
// A payload that is not a callback event is returned as an error.
func (m *MockPublisher) Events(prefix string) ([]CallbackEvent, error) {
	root := prefix + "/callback/"
	var events []CallbackEvent
	for _, r := range m.Records() {
		if !strings.HasPrefix(r.Topic, root) {
			continue
		}
		e, err := r.Event()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// Published signals, coalesced, that a record was added.
func (m *MockPublisher) Published() <-chan struct{} {
	return m.notify
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetError makes subsequent publishes fail with err; nil clears it.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
