package recorder

import (
	"fmt"
	"time"

	"github.com/livemea/mearec/internal/planner"
)

// State represents the lifecycle position of a recording session
type State string

const (
	StateIdle      State = "IDLE"
	StateAcquiring State = "ACQUIRING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Result describes a finished session.
type Result struct {
	SessionID     string
	Plan          planner.Plan
	State         State
	ChunksWritten int
	// Timeouts counts every chunk wait that ran out, including retried ones.
	Timeouts int
	// Dropped counts chunks the source discarded because its queue was full.
	Dropped    int64
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Elapsed is the wall time between start and terminal state.
func (r Result) Elapsed() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SessionError is returned by Record for every terminal state other than
// StateCompleted. It reports how far the session got.
type SessionError struct {
	State   State
	Chunks  int
	Planned int
	Err     error
}

func (e *SessionError) Error() string {
	verb := "failed"
	if e.State == StateCancelled {
		verb = "cancelled"
	}
	return fmt.Sprintf("recording %s after %d of %d chunks persisted: %v", verb, e.Chunks, e.Planned, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
