package session

import (
	"sync"
	"time"
)

const (
	// clearDelay is how long a finished turn's text stays visible before
	// the accumulators reset.
	clearDelay = 4 * time.Second

	// flushInterval batches high-frequency fragment arrivals into one
	// observable update, roughly one per display frame.
	flushInterval = 33 * time.Millisecond
)

// Transcript is the observable text of the current turn.
type Transcript struct {
	User  string `json:"user"`
	Model string `json:"model"`
}

// Assembler accumulates streamed transcript fragments for one turn at a
// time. Fragments append to the side they belong to; the first fragment
// after a turn-complete starts a fresh turn, wiping both sides. After a
// turn completes with no follow-up, a delayed clear empties the display.
type Assembler struct {
	onUpdate func(Transcript)

	mu         sync.Mutex
	user       string
	model      string
	turnOpen   bool
	clearTimer *time.Timer
	flushTimer *time.Timer
	dirty      bool

	holdDelay  time.Duration
	batchEvery time.Duration
}

// NewAssembler builds an assembler that reports coalesced updates through
// onUpdate. onUpdate may be called from timer goroutines.
func NewAssembler(onUpdate func(Transcript)) *Assembler {
	return &Assembler{
		onUpdate:   onUpdate,
		holdDelay:  clearDelay,
		batchEvery: flushInterval,
	}
}

// AppendInput adds a fragment of the user's transcribed speech.
func (a *Assembler) AppendInput(text string) {
	a.append(text, "")
}

// AppendOutput adds a fragment of the model's transcribed speech.
func (a *Assembler) AppendOutput(text string) {
	a.append("", text)
}

func (a *Assembler) append(user, model string) {
	if user == "" && model == "" {
		return
	}

	a.mu.Lock()
	if !a.turnOpen {
		// Hard cutover: the previous turn's text is replaced, and any
		// pending delayed clear no longer applies.
		a.user = ""
		a.model = ""
		a.turnOpen = true
		if a.clearTimer != nil {
			a.clearTimer.Stop()
			a.clearTimer = nil
		}
	}
	a.user += user
	a.model += model
	immediate := a.scheduleFlushLocked()
	a.mu.Unlock()

	if immediate {
		a.flush()
	}
}

// TurnComplete marks the current turn finished and arms the delayed clear.
func (a *Assembler) TurnComplete() {
	a.mu.Lock()
	a.turnOpen = false
	if a.clearTimer != nil {
		a.clearTimer.Stop()
	}
	a.clearTimer = time.AfterFunc(a.holdDelay, a.clearExpired)
	a.mu.Unlock()
}

func (a *Assembler) clearExpired() {
	a.mu.Lock()
	if a.turnOpen {
		// A new turn started after the timer was armed but before it
		// fired.
		a.mu.Unlock()
		return
	}
	a.user = ""
	a.model = ""
	a.clearTimer = nil
	immediate := a.scheduleFlushLocked()
	a.mu.Unlock()

	if immediate {
		a.flush()
	}
}

// Snapshot returns the accumulators as they stand, unbatched.
func (a *Assembler) Snapshot() Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Transcript{User: a.user, Model: a.model}
}

// Reset empties both sides immediately and cancels all pending timers.
func (a *Assembler) Reset() {
	a.mu.Lock()
	a.user = ""
	a.model = ""
	a.turnOpen = false
	a.dirty = false
	if a.clearTimer != nil {
		a.clearTimer.Stop()
		a.clearTimer = nil
	}
	if a.flushTimer != nil {
		a.flushTimer.Stop()
		a.flushTimer = nil
	}
	a.mu.Unlock()
}

// scheduleFlushLocked marks the projection stale. It returns true when the
// caller should flush synchronously, which happens only with batching
// disabled.
func (a *Assembler) scheduleFlushLocked() bool {
	if a.onUpdate == nil {
		return false
	}
	a.dirty = true
	if a.batchEvery <= 0 {
		return true
	}
	if a.flushTimer == nil {
		a.flushTimer = time.AfterFunc(a.batchEvery, a.flush)
	}
	return false
}

func (a *Assembler) flush() {
	a.mu.Lock()
	a.flushTimer = nil
	if !a.dirty {
		a.mu.Unlock()
		return
	}
	a.dirty = false
	snap := Transcript{User: a.user, Model: a.model}
	onUpdate := a.onUpdate
	a.mu.Unlock()

	if onUpdate != nil {
		onUpdate(snap)
	}
}
