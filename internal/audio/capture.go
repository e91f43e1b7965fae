package audio

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	microphone "github.com/deepgram/deepgram-go-sdk/v3/pkg/audio/microphone"
)

const (
	// FrameSamples is the fixed capture frame size in samples. Every frame
	// handed to a FrameHandler holds exactly this many 16 kHz samples.
	FrameSamples = 4096

	// silenceBurstFrames is how many silent frames are emitted after the mic
	// is muted. Gemini's server-side voice activity detection needs trailing
	// silence to finalize the utterance that preceded the mute.
	silenceBurstFrames = 3
)

// FrameHandler receives fixed-size PCM16-LE frames at InputSampleRate.
type FrameHandler func(frame []byte)

// FrameWriter slices an incoming PCM16-LE byte stream into fixed frames of
// FrameSamples samples, resampling from srcRate to InputSampleRate when the
// two differ. While muted it suppresses real audio and emits a short burst
// of silent frames, one per incoming frame, until the burst is spent.
type FrameWriter struct {
	srcRate int
	handler FrameHandler

	mu          sync.Mutex
	buf         []byte
	muted       bool
	silenceLeft int
}

// NewFrameWriter returns a writer that delivers frames to handler. srcRate
// is the sample rate of the bytes written to it.
func NewFrameWriter(srcRate int, handler FrameHandler) *FrameWriter {
	return &FrameWriter{srcRate: srcRate, handler: handler}
}

// SetMuted toggles suppression of captured audio. Engaging mute arms the
// silent-frame burst; disengaging cancels whatever remains of it.
func (w *FrameWriter) SetMuted(muted bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if muted == w.muted {
		return
	}
	w.muted = muted
	if muted {
		w.silenceLeft = silenceBurstFrames
	} else {
		w.silenceLeft = 0
	}
}

// Muted reports whether capture is currently suppressed.
func (w *FrameWriter) Muted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.muted
}

func (w *FrameWriter) Write(p []byte) (int, error) {
	data := ResampleMono16(p, w.srcRate, InputSampleRate)

	frameBytes := FrameSamples * bytesPerSample
	var frames [][]byte

	w.mu.Lock()
	w.buf = append(w.buf, data...)
	for len(w.buf) >= frameBytes {
		frame := w.buf[:frameBytes]
		w.buf = w.buf[frameBytes:]

		if w.muted {
			if w.silenceLeft > 0 {
				w.silenceLeft--
				frames = append(frames, SilentFrame(FrameSamples))
			}
			continue
		}

		out := make([]byte, frameBytes)
		copy(out, frame)
		frames = append(frames, out)
	}
	w.mu.Unlock()

	if w.handler != nil {
		for _, frame := range frames {
			w.handler(frame)
		}
	}
	return len(p), nil
}

// Capture owns the microphone device and pumps its byte stream through a
// FrameWriter.
type Capture struct {
	mic    *microphone.Microphone
	writer *FrameWriter
	rate   int

	mu      sync.Mutex
	started bool
}

// InitCaptureLib prepares the underlying audio backend. Call once at process
// start; pair with TeardownCaptureLib.
func InitCaptureLib()     { microphone.Initialize() }
func TeardownCaptureLib() { microphone.Teardown() }

// captureCandidates normalizes the sample-rate list. Callers own the real
// candidate ordering; an empty list tries the model's input rate only.
func captureCandidates(candidates []int) []int {
	if len(candidates) == 0 {
		return []int{InputSampleRate}
	}
	return candidates
}

// NewCapture opens the default microphone, trying each sample rate in
// candidates until one succeeds. Frames are delivered to handler at
// InputSampleRate regardless of the device rate.
func NewCapture(candidates []int, handler FrameHandler) (*Capture, error) {
	candidates = captureCandidates(candidates)

	var mic *microphone.Microphone
	var err error
	selected := 0

	for _, rate := range candidates {
		mic, err = microphone.New(microphone.AudioConfig{InputChannels: 1, SamplingRate: float32(rate)})
		if err != nil {
			log.Printf("warning: microphone open failed at %d Hz: %v", rate, err)
			continue
		}
		selected = rate
		break
	}
	if mic == nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}

	return &Capture{
		mic:    mic,
		writer: NewFrameWriter(selected, handler),
		rate:   selected,
	}, nil
}

// SampleRate returns the device rate the microphone opened at.
func (c *Capture) SampleRate() int { return c.rate }

// SetMuted forwards to the frame writer. The device keeps running so the
// silent-frame burst can ride the live capture cadence.
func (c *Capture) SetMuted(muted bool) { c.writer.SetMuted(muted) }

// Muted reports the current mute state.
func (c *Capture) Muted() bool { return c.writer.Muted() }

// Start begins streaming mic audio until ctx is canceled or the stream fails.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("capture already started")
	}
	c.started = true
	c.mu.Unlock()

	if err := c.mic.Start(); err != nil {
		return fmt.Errorf("start microphone: %w", err)
	}

	go streamWithRetry(ctx, c.mic, c.writer, time.Sleep, log.Printf)
	return nil
}

// Stop halts the microphone device.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	return c.mic.Stop()
}

type micStreamer interface {
	Stream(writer io.Writer) error
}

func streamWithRetry(
	ctx context.Context,
	streamer micStreamer,
	writer io.Writer,
	wait func(time.Duration),
	logf func(string, ...any),
) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := streamer.Stream(writer)
		if err == nil || ctx.Err() != nil {
			return
		}

		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			logf("warning: mic input overflow, restarting stream")
			wait(250 * time.Millisecond)
			continue
		}

		logf("mic stream error: %v", err)
		return
	}
}
