// Package session tracks per-session summary state in process memory.
//
// A session is created the first time it is referenced and stamped with the
// creation time; Touch restamps it after each successful summarization. The
// tracker is never persisted: a restart forgets every session.
package session

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// State is the tracked metadata for one session.
type State struct {
	SessionID       string    `json:"session_id"`
	LastSummaryTime time.Time `json:"last_summary_time"`
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(t *Tracker) {
		t.now = c
	}
}

// Tracker is a concurrency-safe map of session states.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	now      Clock
}

// NewTracker returns an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ensure creates the session stamped with the current time if it is unknown.
// It reports whether a new entry was created.
func (t *Tracker) Ensure(id string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sessions[id]; ok {
		return false
	}
	t.sessions[id] = now
	return true
}

// Touch restamps a known session. Unknown sessions are ignored.
func (t *Tracker) Touch(id string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sessions[id]; ok {
		t.sessions[id] = now
	}
}

// LastSummaryTime returns the session's stamp, or the zero time if unknown.
func (t *Tracker) LastSummaryTime(id string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

// LastSummaryUnix returns the stamp in Unix seconds, 0 if unknown.
func (t *Tracker) LastSummaryUnix(id string) int64 {
	ts := t.LastSummaryTime(id)
	if ts.IsZero() {
		return 0
	}
	return max(ts.Unix(), 0)
}

// Due reports whether a known session was last summarized at least interval ago.
func (t *Tracker) Due(id string, interval time.Duration) bool {
	now := t.now()

	t.mu.Lock()
	last, ok := t.sessions[id]
	t.mu.Unlock()

	return ok && now.Sub(last) >= interval
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshot returns every session state ordered by session ID.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	out := make([]State, 0, len(t.sessions))
	for id, ts := range t.sessions {
		out = append(out, State{SessionID: id, LastSummaryTime: ts})
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b State) int {
		return cmp.Compare(a.SessionID, b.SessionID)
	})
	return out
}
