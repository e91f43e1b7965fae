package audio

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

type fakeUnit struct {
	stopped bool
}

func (u *fakeUnit) Stop() { u.stopped = true }

type fakeSink struct {
	frames [][]byte
	starts []time.Time
	units  []*fakeUnit
}

func (s *fakeSink) Schedule(frame []byte, at time.Time) (Unit, error) {
	u := &fakeUnit{}
	s.frames = append(s.frames, frame)
	s.starts = append(s.starts, at)
	s.units = append(s.units, u)
	return u, nil
}

func newTestScheduler() (*Scheduler, *fakeSink, *fakeClock) {
	sink := &fakeSink{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewScheduler(sink)
	s.clock = clock
	return s, sink, clock
}

// 100 ms of audio at the output rate.
func outputFrame() []byte { return make([]byte, 4800) }

func TestSchedulerPlaysFramesBackToBack(t *testing.T) {
	s, sink, clock := newTestScheduler()

	s.Enqueue(outputFrame())
	s.Enqueue(outputFrame())
	s.Enqueue(outputFrame())
	s.advance()

	if len(sink.starts) != 3 {
		t.Fatalf("scheduled %d frames, want 3", len(sink.starts))
	}
	for i, at := range sink.starts {
		want := clock.t.Add(time.Duration(i) * 100 * time.Millisecond)
		if !at.Equal(want) {
			t.Fatalf("frame %d starts at %v, want %v", i, at, want)
		}
	}
	if !s.Playing() {
		t.Fatal("expected Playing after scheduling")
	}
}

func TestSchedulerLateFrameRestartsFromNow(t *testing.T) {
	s, sink, clock := newTestScheduler()

	s.Enqueue(outputFrame())
	s.advance()

	// The next frame arrives after the first has fully played.
	clock.t = clock.t.Add(500 * time.Millisecond)
	s.Enqueue(outputFrame())
	s.advance()

	if len(sink.starts) != 2 {
		t.Fatalf("scheduled %d frames, want 2", len(sink.starts))
	}
	if !sink.starts[1].Equal(clock.t) {
		t.Fatalf("late frame starts at %v, want %v", sink.starts[1], clock.t)
	}
}

func TestSchedulerInterruptStopsEverything(t *testing.T) {
	s, sink, clock := newTestScheduler()

	s.Enqueue(outputFrame())
	s.Enqueue(outputFrame())
	s.advance()
	s.Enqueue(outputFrame())

	s.Interrupt()

	for i, u := range sink.units {
		if !u.stopped {
			t.Fatalf("unit %d not stopped", i)
		}
	}
	if s.Playing() {
		t.Fatal("expected not Playing after Interrupt")
	}

	// The queued frame that never reached the sink is gone, and new audio
	// starts from now rather than the old cursor.
	s.advance()
	if len(sink.starts) != 2 {
		t.Fatalf("scheduled %d frames after Interrupt, want 2", len(sink.starts))
	}

	clock.t = clock.t.Add(10 * time.Millisecond)
	s.Enqueue(outputFrame())
	s.advance()
	if !sink.starts[2].Equal(clock.t) {
		t.Fatalf("post-interrupt frame starts at %v, want %v", sink.starts[2], clock.t)
	}
}

func TestSchedulerOnIdleFiresOncePerDrain(t *testing.T) {
	s, _, clock := newTestScheduler()

	idleCount := 0
	s.SetOnIdle(func() { idleCount++ })

	s.Enqueue(outputFrame())
	s.advance()
	if idleCount != 0 {
		t.Fatal("idle fired while audio still playing")
	}

	clock.t = clock.t.Add(200 * time.Millisecond)
	s.advance()
	if idleCount != 1 {
		t.Fatalf("idle fired %d times, want 1", idleCount)
	}

	s.advance()
	s.advance()
	if idleCount != 1 {
		t.Fatalf("idle fired %d times after extra polls, want 1", idleCount)
	}

	// A new burst of audio drains again and fires again.
	s.Enqueue(outputFrame())
	s.advance()
	clock.t = clock.t.Add(200 * time.Millisecond)
	s.advance()
	if idleCount != 2 {
		t.Fatalf("idle fired %d times, want 2", idleCount)
	}
}

func TestSchedulerIgnoresEmptyFrames(t *testing.T) {
	s, sink, _ := newTestScheduler()

	s.Enqueue(nil)
	s.Enqueue([]byte{})
	s.advance()

	if len(sink.frames) != 0 {
		t.Fatalf("scheduled %d frames, want 0", len(sink.frames))
	}
	if s.Playing() {
		t.Fatal("expected not Playing")
	}
}
