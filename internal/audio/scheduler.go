package audio

import (
	"log"
	"sync"
	"time"
)

// Clock abstracts time for the scheduler so tests can drive it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Unit is a single frame of audio handed to a sink. Stop cancels whatever
// part of it has not yet played.
type Unit interface {
	Stop()
}

// Sink plays PCM16-LE frames at OutputSampleRate, each starting at its
// scheduled time.
type Sink interface {
	Schedule(frame []byte, at time.Time) (Unit, error)
}

// Scheduler lines up model audio frames back to back. Each frame starts at
// the later of now and the end of the previous frame, so frames that arrive
// faster than real time play gaplessly and frames that arrive late restart
// the cursor from now.
type Scheduler struct {
	sink  Sink
	clock Clock

	mu       sync.Mutex
	queue    [][]byte
	cursor   time.Time
	inflight []scheduledUnit
	playing  bool
	onIdle   func()

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

type scheduledUnit struct {
	unit Unit
	end  time.Time
}

func NewScheduler(sink Sink) *Scheduler {
	return &Scheduler{
		sink:  sink,
		clock: systemClock{},
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// SetOnIdle registers a callback fired once each time playback drains, after
// having been active. Set before Start.
func (s *Scheduler) SetOnIdle(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIdle = fn
}

// Start runs the scheduling loop until Close.
func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		case <-ticker.C:
		}
		s.advance()
	}
}

// Enqueue adds a frame of PCM16-LE audio at OutputSampleRate to the tail of
// the playback queue.
func (s *Scheduler) Enqueue(frame []byte) {
	if len(frame) == 0 {
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, frame)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Interrupt stops every in-flight frame, drops all queued audio, and resets
// the cursor. Nothing scheduled before the call plays after it returns.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	inflight := s.inflight
	s.inflight = nil
	s.queue = nil
	s.cursor = time.Time{}
	s.playing = false
	s.mu.Unlock()

	for _, su := range inflight {
		su.unit.Stop()
	}
}

// Playing reports whether any audio is queued or still sounding.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Close stops the loop and any in-flight audio.
func (s *Scheduler) Close() {
	s.once.Do(func() { close(s.done) })
	s.Interrupt()
}

func (s *Scheduler) advance() {
	s.mu.Lock()
	now := s.clock.Now()

	keep := s.inflight[:0]
	for _, su := range s.inflight {
		if su.end.After(now) {
			keep = append(keep, su)
		}
	}
	s.inflight = keep

	for len(s.queue) > 0 {
		frame := s.queue[0]
		s.queue = s.queue[1:]

		start := now
		if s.cursor.After(start) {
			start = s.cursor
		}
		unit, err := s.sink.Schedule(frame, start)
		if err != nil {
			log.Printf("playback schedule error: %v", err)
			continue
		}

		end := start.Add(Duration(len(frame), OutputSampleRate))
		s.cursor = end
		s.inflight = append(s.inflight, scheduledUnit{unit: unit, end: end})
		s.playing = true
	}

	drained := s.playing && len(s.inflight) == 0 && len(s.queue) == 0
	if drained {
		s.playing = false
	}
	onIdle := s.onIdle
	s.mu.Unlock()

	if drained && onIdle != nil {
		onIdle()
	}
}
