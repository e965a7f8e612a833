package session

import (
	"errors"
	"time"

	"github.com/hupe1980/replanmesh/core"
)

// ErrNotFound is returned by Get for unknown session ids.
var ErrNotFound = errors.New("session not found")

// RunRecord summarizes one finished run of a session.
type RunRecord struct {
	RunID      string         `json:"run_id"`
	State      core.RunState  `json:"state"`
	Iterations int            `json:"iterations"`
	Error      *core.RunError `json:"error,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Session is a conversation snapshot.
type Session struct {
	ID        string         `json:"id"`
	Messages  []core.Message `json:"messages"`
	Runs      []RunRecord    `json:"runs"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns an independent copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]core.Message(nil), s.Messages...)
	out.Runs = append([]RunRecord(nil), s.Runs...)
	return &out
}

// Store persists sessions.
type Store interface {
	// Get returns a copy of the session or ErrNotFound.
	Get(id string) (*Session, error)
	// Save replaces the conversation of a session and appends rec to its run
	// history. The session is created if it does not exist.
	Save(id string, msgs []core.Message, rec RunRecord) error
	// Delete removes a session. Deleting an unknown id is not an error.
	Delete(id string) error
}
