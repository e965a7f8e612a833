package memory

import (
	"strings"
	"sync"

	"github.com/hupe1980/replanmesh/core"
)

// Memory is an ordered conversation history.
type Memory interface {
	// Add appends messages.
	Add(msgs ...core.Message) error
	// Messages returns a copy of the history in order.
	Messages() []core.Message
	// Len returns the number of messages.
	Len() int
	// Reset clears the history.
	Reset()
}

// InMemory is an unconstrained process-local Memory.
//
// Concurrency: protected by RWMutex.
type InMemory struct {
	mu   sync.RWMutex
	msgs []core.Message
}

// NewInMemory creates a memory pre-populated with msgs.
func NewInMemory(msgs ...core.Message) *InMemory {
	m := &InMemory{}
	m.msgs = append(m.msgs, msgs...)
	return m
}

// Add appends messages.
func (m *InMemory) Add(msgs ...core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msgs...)
	return nil
}

// Messages returns a copy of the history.
func (m *InMemory) Messages() []core.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Message(nil), m.msgs...)
}

// Len returns the number of messages.
func (m *InMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgs)
}

// Reset clears the history.
func (m *InMemory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = nil
}

// Search performs a simple case-insensitive substring match over message
// texts and returns up to limit hits, oldest first. A limit <= 0 means no
// limit.
func (m *InMemory) Search(query string, limit int) []core.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(query)
	out := make([]core.Message, 0)
	for _, msg := range m.msgs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if q == "" || strings.Contains(strings.ToLower(msg.Text), q) {
			out = append(out, msg)
		}
	}
	return out
}

// Clone returns an independent copy of mem. A nil mem yields an empty memory.
func Clone(mem Memory) *InMemory {
	if mem == nil {
		return NewInMemory()
	}
	return NewInMemory(mem.Messages()...)
}

// Last returns the most recent message with role, if any.
func Last(mem Memory, role core.Role) (core.Message, bool) {
	if mem == nil {
		return core.Message{}, false
	}
	msgs := mem.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i], true
		}
	}
	return core.Message{}, false
}
