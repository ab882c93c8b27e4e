package messenger

import (
	"context"
	"sync"

	"github.com/sweeney/asterisk-callback-bot/internal/render"
)

// Call records a single Messenger invocation.
type Call struct {
	Method        string
	ChatID        int64
	Ref           MessageRef
	Text          string
	Keyboard      *render.Keyboard
	InteractionID string
}

// MockMessenger records all calls for test assertions.
type MockMessenger struct {
	mu    sync.Mutex
	calls []Call
	err   error // if set, every method returns this error
}

// NewMockMessenger creates a new MockMessenger.
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{}
}

func (m *MockMessenger) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, c)
	return nil
}

func (m *MockMessenger) Send(_ context.Context, chatID int64, text string, kb *render.Keyboard) error {
	return m.record(Call{Method: "Send", ChatID: chatID, Text: text, Keyboard: kb})
}

func (m *MockMessenger) EditText(_ context.Context, ref MessageRef, text string, kb *render.Keyboard) error {
	return m.record(Call{Method: "EditText", Ref: ref, Text: text, Keyboard: kb})
}

func (m *MockMessenger) EditKeyboard(_ context.Context, ref MessageRef, kb *render.Keyboard) error {
	return m.record(Call{Method: "EditKeyboard", Ref: ref, Keyboard: kb})
}

func (m *MockMessenger) Answer(_ context.Context, interactionID, text string) error {
	return m.record(Call{Method: "Answer", InteractionID: interactionID, Text: text})
}

// Calls returns a copy of all recorded calls.
func (m *MockMessenger) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]Call, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallsTo returns the recorded calls of one method.
func (m *MockMessenger) CallsTo(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the most recent call and false if nothing was recorded.
func (m *MockMessenger) Last() (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Reset clears all recorded calls.
func (m *MockMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// SetError causes all subsequent calls to return err.
// Pass nil to clear.
func (m *MockMessenger) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
