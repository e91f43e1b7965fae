package session

import (
	"sync"
	"testing"
	"time"
)

func newTestAssembler() (*Assembler, *transcriptLog) {
	log := &transcriptLog{}
	a := NewAssembler(log.record)
	a.batchEvery = 0
	a.holdDelay = 40 * time.Millisecond
	return a, log
}

type transcriptLog struct {
	mu      sync.Mutex
	updates []Transcript
}

func (l *transcriptLog) record(t Transcript) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, t)
}

func (l *transcriptLog) last() (Transcript, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.updates) == 0 {
		return Transcript{}, false
	}
	return l.updates[len(l.updates)-1], true
}

func TestAssemblerAppendsFragmentsPerSide(t *testing.T) {
	a, _ := newTestAssembler()

	a.AppendInput("Hello ")
	a.AppendInput("there")
	a.AppendOutput("Hi! ")
	a.AppendOutput("How can I help?")

	snap := a.Snapshot()
	if snap.User != "Hello there" {
		t.Fatalf("user = %q", snap.User)
	}
	if snap.Model != "Hi! How can I help?" {
		t.Fatalf("model = %q", snap.Model)
	}
}

func TestAssemblerNewTurnReplacesPriorText(t *testing.T) {
	a, _ := newTestAssembler()

	a.AppendInput("first question")
	a.AppendOutput("first answer")
	a.TurnComplete()

	// The next fragment starts a new turn: prior text is replaced, not
	// appended to.
	a.AppendInput("second")
	snap := a.Snapshot()
	if snap.User != "second" {
		t.Fatalf("user = %q, want fresh turn text", snap.User)
	}
	if snap.Model != "" {
		t.Fatalf("model = %q, want empty", snap.Model)
	}
}

func TestAssemblerDelayedClearAfterTurnComplete(t *testing.T) {
	a, log := newTestAssembler()

	a.AppendInput("question")
	a.AppendOutput("answer")
	a.TurnComplete()

	// Text stays visible during the hold window.
	time.Sleep(10 * time.Millisecond)
	if snap := a.Snapshot(); snap.User != "question" {
		t.Fatalf("user cleared too early: %q", snap.User)
	}

	// After the window, both sides are empty and the observer saw it.
	time.Sleep(60 * time.Millisecond)
	if snap := a.Snapshot(); snap.User != "" || snap.Model != "" {
		t.Fatalf("expected cleared transcript, got %+v", snap)
	}
	last, ok := log.last()
	if !ok || last.User != "" || last.Model != "" {
		t.Fatalf("expected cleared update, got %+v", last)
	}
}

func TestAssemblerNewFragmentCancelsPendingClear(t *testing.T) {
	a, _ := newTestAssembler()

	a.AppendInput("old")
	a.TurnComplete()

	a.AppendInput("new")

	// The old clear timer must not wipe the new turn's text.
	time.Sleep(70 * time.Millisecond)
	if snap := a.Snapshot(); snap.User != "new" {
		t.Fatalf("user = %q, want %q", snap.User, "new")
	}
}

func TestAssemblerBatchesHighFrequencyFragments(t *testing.T) {
	log := &transcriptLog{}
	a := NewAssembler(log.record)
	a.batchEvery = 20 * time.Millisecond

	for i := 0; i < 50; i++ {
		a.AppendOutput("x")
	}
	time.Sleep(50 * time.Millisecond)

	log.mu.Lock()
	updates := len(log.updates)
	log.mu.Unlock()
	if updates == 0 || updates >= 50 {
		t.Fatalf("got %d updates, want coalesced into a few", updates)
	}

	last, _ := log.last()
	if len(last.Model) != 50 {
		t.Fatalf("final projection has %d chars, want 50", len(last.Model))
	}
}

func TestAssemblerResetCancelsEverything(t *testing.T) {
	a, _ := newTestAssembler()

	a.AppendInput("text")
	a.TurnComplete()
	a.Reset()

	if snap := a.Snapshot(); snap.User != "" || snap.Model != "" {
		t.Fatalf("expected empty after reset, got %+v", snap)
	}

	// The clear timer armed before Reset must not fire into a fresh turn.
	a.AppendInput("fresh")
	time.Sleep(70 * time.Millisecond)
	if snap := a.Snapshot(); snap.User != "fresh" {
		t.Fatalf("user = %q, want %q", snap.User, "fresh")
	}
}
