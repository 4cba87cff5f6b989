package history

import (
	"testing"
	"time"

	"github.com/sageorb/platform/internal/session"
)

func TestJournalRecordsStateChanges(t *testing.T) {
	j := NewJournal(30, 10)
	j.StateChanged(session.Listening)

	events := j.Recent(0)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Kind != KindState || events[0].State != "listening" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestJournalMaxSize(t *testing.T) {
	j := NewJournal(5, 10)
	for i := 0; i < 10; i++ {
		j.Notice("msg")
	}

	if got := len(j.Recent(0)); got != 5 {
		t.Errorf("expected 5 events, got %d", got)
	}
}

func TestJournalRecentLimit(t *testing.T) {
	j := NewJournal(30, 30)
	j.StateChanged(session.Listening)
	j.StateChanged(session.Processing)
	j.StateChanged(session.Speaking)

	events := j.Recent(2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].State != "processing" || events[1].State != "speaking" {
		t.Errorf("expected the two newest events oldest first, got %+v", events)
	}
}

func TestJournalResultsWindow(t *testing.T) {
	j := NewJournal(30, 30)
	j.ResultReady(session.Result{Wisdom: "recent"})

	// Manually add an old result
	j.mu.Lock()
	j.entries = append([]Event{{
		Kind:   KindResult,
		Result: &session.Result{Wisdom: "old"},
		At:     time.Now().Add(-5 * time.Minute),
	}}, j.entries...)
	j.mu.Unlock()

	results := j.Results(time.Minute)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Wisdom != "recent" {
		t.Errorf("expected recent result, got %q", results[0].Wisdom)
	}
}

func TestJournalEmit(t *testing.T) {
	j := NewJournal(30, 10)
	go j.Notice("test")

	select {
	case e := <-j.Events():
		if e.Kind != KindNotice || e.Notice != "test" {
			t.Errorf("unexpected event: %+v", e)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestJournalEmitNonBlocking(t *testing.T) {
	j := NewJournal(30, 1) // Small buffer

	// Fill the buffer
	j.Notice("1")

	// This should not block
	done := make(chan struct{})
	go func() {
		j.Notice("2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("record blocked when channel was full")
	}

	// Both events stay readable through Recent even though one was dropped
	// from the live channel.
	if got := len(j.Recent(0)); got != 2 {
		t.Errorf("expected 2 journal entries, got %d", got)
	}
}
