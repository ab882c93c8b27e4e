// Package registry holds the callback attempts that are currently in flight,
// keyed by customer number and operator extension.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/asterisk-callback-bot/internal/messenger"
)

// Stage is the lifecycle stage of an attempt.
type Stage int

const (
	StageDialing Stage = iota + 1
	StageBridged
	StageEnded
)

func (s Stage) String() string {
	switch s {
	case StageDialing:
		return "dialing"
	case StageBridged:
		return "bridged"
	case StageEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CallKey identifies an attempt. Field order is always customer first.
type CallKey struct {
	Customer  string `json:"customer"`
	Extension string `json:"extension"`
}

func (k CallKey) String() string {
	if k.Extension == "" {
		return k.Customer
	}
	return k.Customer + "-" + k.Extension
}

// Attempt is one operator callback, from selection until hangup.
type Attempt struct {
	Key             CallKey              `json:"key"`
	Message         messenger.MessageRef `json:"message"`
	BaseText        string               `json:"-"`
	KeyboardVisible bool                 `json:"keyboard_visible"`
	Stage           Stage                `json:"stage"`
	ActionID        string               `json:"action_id,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// Registry is the table of live attempts. It holds values, so callers
// mutate a copy and Put it back. Each chat message belongs to at most one
// live attempt.
type Registry struct {
	mu     sync.RWMutex
	calls  map[CallKey]Attempt
	owners map[messenger.MessageRef]CallKey
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		calls:  make(map[CallKey]Attempt),
		owners: make(map[messenger.MessageRef]CallKey),
	}
}

// Put inserts or overwrites the attempt stored under a.Key.
func (r *Registry) Put(a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.calls[a.Key]; ok && old.Message != a.Message {
		delete(r.owners, old.Message)
	}
	r.calls[a.Key] = a
	r.owners[a.Message] = a.Key
}

// ByMessage returns the live attempt that owns ref.
func (r *Registry) ByMessage(ref messenger.MessageRef) (Attempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.owners[ref]
	if !ok {
		return Attempt{}, false
	}
	a, ok := r.calls[key]
	return a, ok
}

// Get returns the live attempt for key.
func (r *Registry) Get(key CallKey) (Attempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.calls[key]
	return a, ok
}

// Remove deletes key and reports whether it was present. Removing an absent
// key is a no-op.
func (r *Registry) Remove(key CallKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.calls[key]
	if !ok {
		return false
	}
	delete(r.calls, key)
	if r.owners[a.Message] == key {
		delete(r.owners, a.Message)
	}
	return true
}

// Len returns the number of live attempts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Snapshot returns all live attempts, oldest first.
func (r *Registry) Snapshot() []Attempt {
	r.mu.RLock()
	out := make([]Attempt, 0, len(r.calls))
	for _, a := range r.calls {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}
