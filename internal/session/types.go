package session

import (
	"context"
	"time"

	"github.com/vivabot-tech/lingualive/internal/audio"
	"github.com/vivabot-tech/lingualive/internal/genlive"
)

// State is the observable session status.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateListening  State = "listening"
	StateSpeaking   State = "speaking"
	StateError      State = "error"
)

// Channel is the duplex connection to the speech model.
type Channel interface {
	SendAudio(pcm []byte) error
	SendText(text string) error
	Events() <-chan genlive.Event
	Close() error
}

// Dialer opens a Channel. The controller calls it once per start.
type Dialer func(ctx context.Context, cfg genlive.Config) (Channel, error)

// Capture is a running microphone pipeline delivering fixed frames to the
// handler it was built with.
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
	SetMuted(muted bool)
	Muted() bool
}

// CaptureFactory builds a Capture whose frames go to handler. The controller
// acquires the device per session and releases it on stop.
type CaptureFactory func(handler audio.FrameHandler) (Capture, error)

// Player schedules model audio for gapless output.
type Player interface {
	Enqueue(frame []byte)
	Interrupt()
	Playing() bool
}

// TokenSource mints the session credential.
type TokenSource interface {
	Fetch(ctx context.Context) (string, error)
}

// EventBroadcaster pushes session happenings to connected UI clients.
type EventBroadcaster interface {
	BroadcastStatusChanged(state State, message string)
	BroadcastTranscript(t Transcript)
	BroadcastSessionStarted(persona Persona, language string)
	BroadcastSessionEnded(duration time.Duration)
}
