// Package genlive is a client for the Gemini Live BidiGenerateContent
// protocol. It holds one WebSocket session, streams mic audio up as base64
// PCM chunks, and surfaces everything the server sends as typed events on a
// single channel.
package genlive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	inputMIMEType = "audio/pcm;rate=16000"

	keepaliveInterval = 20 * time.Second
	writeTimeout      = 10 * time.Second
)

// Config describes one live session.
type Config struct {
	// BaseURL overrides the Gemini Live endpoint, mostly for tests.
	BaseURL string

	// Token authenticates the connection. Ephemeral tokens minted server
	// side work here as well as plain API keys.
	Token string

	// Model selects the live model; empty means DefaultModel.
	Model string

	// Voice names a prebuilt voice for audio responses.
	Voice string

	// SystemInstruction seeds the model's behavior for the session.
	SystemInstruction string

	// Transcription asks the server to transcribe both the user's input
	// audio and the model's output audio.
	Transcription bool
}

// Event is one server-side occurrence. Callers type-switch on the concrete
// types below.
type Event any

// SetupCompleteEvent means the server accepted the setup message and the
// session is live.
type SetupCompleteEvent struct{}

// AudioEvent carries decoded PCM16-LE model audio at 24 kHz.
type AudioEvent struct {
	PCM []byte
}

// InputTranscriptEvent is a fragment of the transcription of the user's
// speech.
type InputTranscriptEvent struct {
	Text string
}

// OutputTranscriptEvent is a fragment of the transcription of the model's
// speech.
type OutputTranscriptEvent struct {
	Text string
}

// TurnCompleteEvent means the model finished its current response turn.
type TurnCompleteEvent struct{}

// InterruptedEvent means the server detected the user talking over the
// model and cut the response short. Audio already delivered should be
// discarded.
type InterruptedEvent struct{}

// ClosedEvent is the final event on the channel. Clean is true for a normal
// closure (code 1000) or a locally requested close.
type ClosedEvent struct {
	Code   int
	Reason string
	Clean  bool
	Err    error
}

// Client is one live session. Events must be drained until the channel
// closes; ClosedEvent is always the last event.
type Client struct {
	conn   *websocket.Conn
	events chan Event

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// Connect dials the live endpoint, sends the setup message, and starts the
// receive loop.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		base, cfg.Token,
	)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}

	if err := c.sendSetup(model, cfg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	go c.receiveLoop()
	go c.keepaliveLoop()

	return c, nil
}

// Events returns the session's event stream.
func (c *Client) Events() <-chan Event { return c.events }

// SendAudio ships one PCM16-LE chunk at 16 kHz to the model.
func (c *Client) SendAudio(pcm []byte) error {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: inputMIMEType, Data: base64.StdEncoding.EncodeToString(pcm)},
			},
		},
	}
	return c.writeJSON(msg)
}

// SendText injects a user text turn, marking the turn complete so the model
// responds immediately.
func (c *Client) SendText(text string) error {
	msg := clientContentMessage{
		ClientContent: clientContent{
			Turns: []contentTurn{
				{Role: "user", Parts: []part{{Text: text}}},
			},
			TurnComplete: true,
		},
	}
	return c.writeJSON(msg)
}

// Close requests a normal closure and releases the connection. Idempotent;
// the event channel still closes via the receive loop.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })

	c.writeMu.Lock()
	deadline := time.Now().Add(writeTimeout)
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
		deadline,
	)
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) sendSetup(model string, cfg Config) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.Transcription {
		msg.Setup.InputAudioTranscription = &struct{}{}
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}

	return c.writeJSON(msg)
}

func (c *Client) writeJSON(v any) error {
	if c.isClosed() {
		return errors.New("session closed")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// receiveLoop owns the event channel: it emits a final ClosedEvent and
// closes the channel when the connection ends, however that happens.
func (c *Client) receiveLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.events <- closedEventFor(err, c.isClosed())
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.dispatch(&msg)
	}
}

func closedEventFor(err error, requested bool) ClosedEvent {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ClosedEvent{
			Code:   ce.Code,
			Reason: ce.Text,
			Clean:  ce.Code == websocket.CloseNormalClosure,
		}
	}
	if requested {
		return ClosedEvent{Code: websocket.CloseNormalClosure, Clean: true}
	}
	return ClosedEvent{Err: err}
}

func (c *Client) dispatch(msg *serverMessage) {
	if msg.SetupComplete != nil {
		c.emit(SetupCompleteEvent{})
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	// Interruption is handled before any audio in the same message so the
	// consumer flushes stale playback first.
	if sc.Interrupted {
		c.emit(InterruptedEvent{})
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil || len(pcm) == 0 {
				continue
			}
			c.emit(AudioEvent{PCM: pcm})
		}
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		c.emit(InputTranscriptEvent{Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		c.emit(OutputTranscriptEvent{Text: sc.OutputTranscription.Text})
	}

	if sc.TurnComplete {
		c.emit(TurnCompleteEvent{})
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
		}
	}
}
