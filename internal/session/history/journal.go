// Package history keeps a bounded journal of session events and fans them
// out to the UI layer.
package history

import (
	"sync"
	"time"

	"github.com/sageorb/platform/internal/session"
)

// Kind discriminates journal events on the wire.
type Kind string

const (
	KindState  Kind = "state"
	KindResult Kind = "result"
	KindNotice Kind = "notice"
)

// Event is one session occurrence: a state transition, a finished result,
// or a user-facing notice.
type Event struct {
	Kind   Kind            `json:"kind"`
	State  string          `json:"state,omitempty"`
	Result *session.Result `json:"result,omitempty"`
	Notice string          `json:"notice,omitempty"`
	At     time.Time       `json:"at"`
}

// Journal is an in-memory ring of session events. It implements
// session.Notifier so the machine can write to it directly; the server
// drains Events for live fan-out and reads Recent for the history API.
type Journal struct {
	mu       sync.RWMutex
	entries  []Event
	maxSize  int
	eventsCh chan Event
}

func NewJournal(maxEntries, eventBuffer int) *Journal {
	return &Journal{
		entries:  make([]Event, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
	}
}

// StateChanged records a lifecycle transition.
func (j *Journal) StateChanged(s session.State) {
	j.record(Event{Kind: KindState, State: s.String(), At: time.Now()})
}

// ResultReady records a completed analyze/synthesize cycle.
func (j *Journal) ResultReady(r session.Result) {
	j.record(Event{Kind: KindResult, Result: &r, At: time.Now()})
}

// Notice records a user-facing message.
func (j *Journal) Notice(msg string) {
	j.record(Event{Kind: KindNotice, Notice: msg, At: time.Now()})
}

func (j *Journal) record(e Event) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	if len(j.entries) > j.maxSize {
		j.entries = j.entries[len(j.entries)-j.maxSize:]
	}
	j.mu.Unlock()

	j.Emit(e)
}

// Recent returns up to n events, oldest first.
func (j *Journal) Recent(n int) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 || n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]Event, n)
	copy(out, j.entries[len(j.entries)-n:])
	return out
}

// Results returns the result events recorded within the window, oldest
// first.
func (j *Journal) Results(window time.Duration) []session.Result {
	j.mu.RLock()
	defer j.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var out []session.Result
	for _, e := range j.entries {
		if e.Kind == KindResult && !e.At.Before(cutoff) && e.Result != nil {
			out = append(out, *e.Result)
		}
	}
	return out
}

// Events returns the live fan-out channel.
func (j *Journal) Events() <-chan Event {
	return j.eventsCh
}

// Emit sends an event to the live channel without blocking; when no one is
// draining, the event is dropped and stays available through Recent.
func (j *Journal) Emit(e Event) {
	select {
	case j.eventsCh <- e:
	default:
	}
}
