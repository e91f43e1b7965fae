package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vivabot-tech/lingualive/internal/bargein"
	"github.com/vivabot-tech/lingualive/internal/genlive"
	"github.com/vivabot-tech/lingualive/internal/observe"
)

// Options are the controller's environment-level settings.
type Options struct {
	// BaseURL overrides the live endpoint, mostly for tests.
	BaseURL string

	// Model selects the live model; empty uses the client default.
	Model string
}

// Controller owns the single active voice session: it fetches the
// credential, opens the channel and the microphone, routes events between
// them, and exposes the observable state machine.
type Controller struct {
	tokens     TokenSource
	dial       Dialer
	newCapture CaptureFactory
	player     Player
	hub        EventBroadcaster
	detector   *bargein.Detector
	metrics    *observe.Metrics
	opts       Options

	mu     sync.Mutex
	state  State
	errMsg string
	active *activeSession
	// gen increments on every Start and Stop. A Start that acquired
	// resources while a Stop slipped in sees a stale gen and unwinds
	// instead of installing the session.
	gen uint64
}

type activeSession struct {
	cfg       PersonaConfig
	language  string
	channel   Channel
	capture   Capture
	assembler *Assembler
	startedAt time.Time
	cancel    context.CancelFunc

	requestedStop atomic.Bool
	closedHandled atomic.Bool
	// replyWaitStart marks (unix nanos) when the user finished talking and
	// a model reply became due; zero when no reply is pending.
	replyWaitStart atomic.Int64
	teardownOnce   sync.Once
	done           chan struct{}
}

// NewController wires the collaborators together. metrics may be nil.
func NewController(
	tokens TokenSource,
	dial Dialer,
	newCapture CaptureFactory,
	player Player,
	hub EventBroadcaster,
	detector *bargein.Detector,
	metrics *observe.Metrics,
	opts Options,
) *Controller {
	if detector == nil {
		detector = bargein.NewDetector(0, 0)
	}
	return &Controller{
		tokens:     tokens,
		dial:       dial,
		newCapture: newCapture,
		player:     player,
		hub:        hub,
		detector:   detector,
		metrics:    metrics,
		opts:       opts,
		state:      StateIdle,
	}
}

// State returns the current status and, in the error state, the last error
// message.
func (c *Controller) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.errMsg
}

// Start brings up a session for the given persona. Exactly one session may
// be live at a time; callers must Stop before starting another.
func (c *Controller) Start(ctx context.Context, persona Persona, language, voice string) error {
	cfg, err := ResolvePersona(persona, language, voice)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.active != nil || c.state == StateConnecting {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.errMsg = ""
	c.mu.Unlock()
	if c.hub != nil {
		c.hub.BroadcastStatusChanged(StateConnecting, "")
	}

	fetchStart := time.Now()
	tok, err := c.tokens.Fetch(ctx)
	if err != nil {
		return c.failStart(gen, fmt.Errorf("fetch token: %w", err))
	}
	c.metrics.RecordTokenFetch(ctx, time.Since(fetchStart))

	channel, err := c.dial(ctx, genlive.Config{
		BaseURL:           c.opts.BaseURL,
		Model:             c.opts.Model,
		Token:             tok,
		Voice:             cfg.Voice,
		SystemInstruction: cfg.Instruction,
		Transcription:     true,
	})
	if err != nil {
		return c.failStart(gen, fmt.Errorf("connect channel: %w", err))
	}

	captureCtx, cancel := context.WithCancel(context.Background())
	s := &activeSession{
		cfg:       cfg,
		language:  language,
		channel:   channel,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.assembler = NewAssembler(func(t Transcript) {
		c.hub.BroadcastTranscript(t)
	})

	capture, err := c.newCapture(c.frameHandler(s))
	if err != nil {
		cancel()
		_ = channel.Close()
		return c.failStart(gen, fmt.Errorf("open microphone: %w", err))
	}
	s.capture = capture
	capture.SetMuted(cfg.StartMuted)

	if err := capture.Start(captureCtx); err != nil {
		cancel()
		_ = capture.Stop()
		_ = channel.Close()
		return c.failStart(gen, fmt.Errorf("start microphone: %w", err))
	}

	c.detector.Reset()

	c.mu.Lock()
	if c.gen != gen {
		// Stop won the race while we were connecting. Unwind everything
		// we acquired; Stop already reported the idle state.
		c.mu.Unlock()
		cancel()
		_ = capture.Stop()
		_ = channel.Close()
		return ErrSessionStopped
	}
	c.active = s
	c.mu.Unlock()

	c.metrics.RecordSessionStart(ctx, string(cfg.Persona))
	go c.eventLoop(s)
	return nil
}

func (c *Controller) failStart(gen uint64, err error) error {
	c.mu.Lock()
	superseded := c.gen != gen
	c.mu.Unlock()
	if !superseded {
		c.broadcastState(StateError, err.Error())
	}
	return err
}

// frameHandler builds the per-frame capture callback for one session. It
// runs on the mic stream goroutine, so everything it touches is either
// immutable session config or internally synchronized.
func (c *Controller) frameHandler(s *activeSession) func(frame []byte) {
	return func(frame []byte) {
		if s.cfg.LocalBargeIn && c.player.Playing() && c.detector.Check(frame) {
			c.interrupt("local")
		}

		if err := s.channel.SendAudio(frame); err != nil {
			log.Printf("send audio frame: %v", err)
			return
		}
		c.metrics.RecordFrameSent(context.Background())
	}
}

// interrupt flushes playback and drops back to listening. Used for both
// locally detected barge-in and the server's interruption signal.
func (c *Controller) interrupt(source string) {
	c.player.Interrupt()
	c.transitionIf(StateSpeaking, StateListening)
	c.metrics.RecordInterruption(context.Background(), source)
}

// PlaybackIdle is the scheduler's drain callback: the assistant finished
// talking, so the session goes back to listening.
func (c *Controller) PlaybackIdle() {
	c.transitionIf(StateSpeaking, StateListening)
}

func (c *Controller) eventLoop(s *activeSession) {
	defer close(s.done)

	for ev := range s.channel.Events() {
		switch ev := ev.(type) {
		case genlive.SetupCompleteEvent:
			if c.transitionIf(StateConnecting, StateListening) {
				c.hub.BroadcastSessionStarted(s.cfg.Persona, s.language)
			}
		case genlive.AudioEvent:
			c.player.Enqueue(ev.PCM)
			c.transitionIf(StateListening, StateSpeaking)
			c.metrics.RecordAudioReceived(context.Background(), len(ev.PCM))
			if mark := s.replyWaitStart.Swap(0); mark != 0 {
				c.metrics.RecordTimeToFirstAudio(context.Background(), time.Since(time.Unix(0, mark)))
			}
		case genlive.InputTranscriptEvent:
			s.assembler.AppendInput(ev.Text)
		case genlive.OutputTranscriptEvent:
			s.assembler.AppendOutput(ev.Text)
		case genlive.TurnCompleteEvent:
			s.assembler.TurnComplete()
			c.metrics.RecordTurnComplete(context.Background())
		case genlive.InterruptedEvent:
			c.interrupt("remote")
		case genlive.ClosedEvent:
			c.handleClosed(s, ev)
		}
	}
}

func (c *Controller) handleClosed(s *activeSession, ev genlive.ClosedEvent) {
	// Teardown closing the channel can surface a second ClosedEvent; only
	// the first one drives the state machine.
	if !s.closedHandled.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()

	requested := s.requestedStop.Load()
	c.teardown(s)

	if requested {
		// Stop already transitioned the state and reported the session
		// end.
		return
	}

	c.metrics.RecordSessionEnd(context.Background(), string(s.cfg.Persona), time.Since(s.startedAt))
	c.hub.BroadcastSessionEnded(time.Since(s.startedAt))

	if ev.Clean {
		c.broadcastState(StateIdle, "")
		return
	}

	msg := ev.Reason
	if msg == "" && ev.Err != nil {
		msg = ev.Err.Error()
	}
	if msg == "" {
		msg = fmt.Sprintf("connection closed with code %d", ev.Code)
	}
	c.broadcastState(StateError, msg)
}

// Stop tears the session down. Safe to call from any state, any number of
// times.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.gen++
	s := c.active
	c.active = nil
	fromError := c.state == StateError
	alreadyIdle := c.state == StateIdle
	c.mu.Unlock()

	if s == nil {
		if fromError || !alreadyIdle {
			c.broadcastState(StateIdle, "")
		}
		return
	}

	s.requestedStop.Store(true)
	c.teardown(s)

	c.metrics.RecordSessionEnd(context.Background(), string(s.cfg.Persona), time.Since(s.startedAt))
	c.hub.BroadcastSessionEnded(time.Since(s.startedAt))
	c.broadcastState(StateIdle, "")
}

// teardown releases every session resource exactly once.
func (c *Controller) teardown(s *activeSession) {
	s.teardownOnce.Do(func() {
		s.cancel()
		if err := s.capture.Stop(); err != nil {
			log.Printf("stop capture: %v", err)
		}
		if err := s.channel.Close(); err != nil {
			log.Printf("close channel: %v", err)
		}
		c.player.Interrupt()
		s.assembler.Reset()
	})
}

// SetMuted flips the push-to-talk flag on the live session's capture.
func (c *Controller) SetMuted(muted bool) error {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return ErrNoActiveSession
	}
	if muted && !s.capture.Muted() {
		s.replyWaitStart.Store(time.Now().UnixNano())
	}
	s.capture.SetMuted(muted)
	return nil
}

// Muted reports the live session's push-to-talk flag.
func (c *Controller) Muted() (bool, error) {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return false, ErrNoActiveSession
	}
	return s.capture.Muted(), nil
}

// Talk injects a text turn, used by the UI's typed-message box.
func (c *Controller) Talk(text string) error {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return ErrNoActiveSession
	}
	s.replyWaitStart.Store(time.Now().UnixNano())
	return s.channel.SendText(text)
}

// Transcript returns the current turn's accumulated text.
func (c *Controller) Transcript() Transcript {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return Transcript{}
	}
	return s.assembler.Snapshot()
}

func (c *Controller) broadcastState(state State, msg string) {
	c.mu.Lock()
	if c.state == state && c.errMsg == msg {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.errMsg = msg
	c.mu.Unlock()

	if c.hub != nil {
		c.hub.BroadcastStatusChanged(state, msg)
	}
}

// transitionIf moves from one state to another atomically, reporting whether
// the transition happened.
func (c *Controller) transitionIf(from, to State) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.errMsg = ""
	c.mu.Unlock()

	if c.hub != nil {
		c.hub.BroadcastStatusChanged(to, "")
	}
	return true
}
