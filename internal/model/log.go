package model

import (
	"errors"
	"time"
)

var (
	// ErrMalformed marks a queue message whose body cannot become a Candidate.
	ErrMalformed = errors.New("malformed message")
	// ErrDuplicate marks a write rejected by the event_id unique constraint.
	ErrDuplicate = errors.New("duplicate event")
)

// RawMessage is one message as handed over by the queue.
type RawMessage struct {
	MessageID string
	Body      string
}

// Candidate is a validated log record that has not been persisted yet.
// ID always comes from the queue message id, never from the body.
type Candidate struct {
	ID        string
	Message   string
	Level     Level
	Timestamp time.Time
}

// LogEntry is the durable form of a Candidate.
type LogEntry struct {
	ID        int64
	EventID   string
	Message   string
	Level     Level
	Timestamp time.Time
}

// Entry converts the candidate into a LogEntry, stamping now when the
// candidate carried no timestamp of its own.
func (c Candidate) Entry(now time.Time) LogEntry {
	ts := c.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return LogEntry{
		EventID:   c.ID,
		Message:   c.Message,
		Level:     c.Level,
		Timestamp: ts.UTC(),
	}
}
