package emitter

import (
	"fmt"
	"strings"
	"time"
)

// Event is a single emission on the bus. It is built once by Emit and handed
// to every matching handler by value; handlers must treat Path and Payload as
// read-only.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      []string  `json:"path"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	origin *Emitter
}

// Origin returns the view the event was emitted through. Replies emitted on
// it are rejected once that namespace is closed, even if the same path was
// opened again since.
func (e Event) Origin() *Emitter { return e.origin }

// Namespace returns the dotted form of the event path ("" for root).
func (e Event) Namespace() string { return strings.Join(e.Path, ".") }

// FullName returns namespace and name joined as "<namespace>:<name>", or just
// the name for root emissions. Intended for logs.
func (e Event) FullName() string {
	if len(e.Path) == 0 {
		return e.Name
	}
	return e.Namespace() + ":" + e.Name
}

// HasPrefix reports whether the event was emitted at prefix or below it.
func (e Event) HasPrefix(prefix []string) bool {
	if len(prefix) > len(e.Path) {
		return false
	}
	for i, seg := range prefix {
		if e.Path[i] != seg {
			return false
		}
	}
	return true
}

// HandlerError is reported to the error sink when a subscriber returns an
// error or panics. It never reaches the emitter.
type HandlerError struct {
	Event          Event
	SubscriptionID string
	Err            error
	Panicked       bool
}

func (e *HandlerError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("handler %s panicked on %s: %v", e.SubscriptionID, e.Event.FullName(), e.Err)
	}
	return fmt.Sprintf("handler %s failed on %s: %v", e.SubscriptionID, e.Event.FullName(), e.Err)
}

// Unwrap returns the underlying handler error.
func (e *HandlerError) Unwrap() error { return e.Err }
