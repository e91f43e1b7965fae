package server

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vivabot-tech/lingualive/internal/session"
)

type controllerStub struct {
	mu       sync.Mutex
	state    session.State
	message  string
	muted    bool
	startErr error
	talkErr  error
	muteErr  error

	starts []string
	stops  int
	talks  []string
}

func (c *controllerStub) Start(_ context.Context, persona session.Persona, language, voice string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.starts = append(c.starts, string(persona)+"/"+language+"/"+voice)
	c.state = session.StateConnecting
	return nil
}

func (c *controllerStub) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.state = session.StateIdle
}

func (c *controllerStub) Talk(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.talkErr != nil {
		return c.talkErr
	}
	c.talks = append(c.talks, text)
	return nil
}

func (c *controllerStub) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muteErr != nil {
		return c.muteErr
	}
	c.muted = muted
	return nil
}

func (c *controllerStub) Muted() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted, nil
}

func (c *controllerStub) State() (session.State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == "" {
		return session.StateIdle, ""
	}
	return c.state, c.message
}

type flagStoreStub struct {
	mu    sync.Mutex
	flags map[string]bool
	err   error
}

func (s *flagStoreStub) GetFlag(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.flags[name], nil
}

func (s *flagStoreStub) SetFlag(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.flags == nil {
		s.flags = map[string]bool{}
	}
	s.flags[name] = enabled
	return nil
}

func testStaticFS(t *testing.T) fs.FS {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>ok</html>"), 0o644); err != nil {
		t.Fatalf("write index.html failed: %v", err)
	}
	return os.DirFS(dir)
}

func newTestHandler(t *testing.T, controller *controllerStub, flags *flagStoreStub, opts Options) http.Handler {
	t.Helper()
	if controller == nil {
		controller = &controllerStub{}
	}
	if flags == nil {
		flags = &flagStoreStub{}
	}
	h, err := Handler(testStaticFS(t), NewHub(), controller, flags, opts)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	return h
}

func TestAPIAssistantStart(t *testing.T) {
	controller := &controllerStub{}
	h := newTestHandler(t, controller, nil, Options{})

	body := strings.NewReader(`{"persona":"interpreter","language":"hi","voice":"Kore"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assistant/start", body)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(controller.starts) != 1 || controller.starts[0] != "interpreter/hi/Kore" {
		t.Fatalf("starts = %v", controller.starts)
	}
	if !strings.Contains(rr.Body.String(), "connecting") {
		t.Fatalf("expected state in response, got %s", rr.Body.String())
	}
}

func TestAPIAssistantStartDefaultsToVivaBot(t *testing.T) {
	controller := &controllerStub{}
	h := newTestHandler(t, controller, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/start", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(controller.starts) != 1 || !strings.HasPrefix(controller.starts[0], "vivabot/") {
		t.Fatalf("starts = %v", controller.starts)
	}
}

func TestAPIAssistantStartConflictWhenActive(t *testing.T) {
	controller := &controllerStub{startErr: session.ErrSessionActive}
	h := newTestHandler(t, controller, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/start", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAPIAssistantStopAlwaysSucceeds(t *testing.T) {
	controller := &controllerStub{}
	h := newTestHandler(t, controller, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/stop", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if controller.stops != 1 {
		t.Fatalf("stops = %d", controller.stops)
	}
}

func TestAPIAssistantTalk(t *testing.T) {
	controller := &controllerStub{}
	h := newTestHandler(t, controller, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/talk", strings.NewReader(`{"text":"hello"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if len(controller.talks) != 1 || controller.talks[0] != "hello" {
		t.Fatalf("talks = %v", controller.talks)
	}
}

func TestAPIAssistantTalkRequiresText(t *testing.T) {
	h := newTestHandler(t, nil, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/talk", strings.NewReader(`{"text":"  "}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAPIAssistantTalkWithoutSession(t *testing.T) {
	controller := &controllerStub{talkErr: session.ErrNoActiveSession}
	h := newTestHandler(t, controller, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/talk", strings.NewReader(`{"text":"hi"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAPIAssistantMute(t *testing.T) {
	controller := &controllerStub{}
	h := newTestHandler(t, controller, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/assistant/mute", strings.NewReader(`{"muted":true}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !controller.muted {
		t.Fatal("expected mute to be set")
	}
}

func TestAPIStatus(t *testing.T) {
	controller := &controllerStub{state: session.StateListening, muted: true}
	h := newTestHandler(t, controller, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var got struct {
		State string `json:"state"`
		Muted bool   `json:"muted"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if got.State != "listening" || !got.Muted {
		t.Fatalf("status = %+v", got)
	}
}

func TestAPILanguagesAndVoices(t *testing.T) {
	h := newTestHandler(t, nil, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/languages", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Hindi") {
		t.Fatalf("languages: code=%d body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/voices", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Kore") {
		t.Fatalf("voices: code=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAPIVoicePreview(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Kore.wav"), []byte(strings.Repeat("a", 256)), 0o644); err != nil {
		t.Fatalf("write preview failed: %v", err)
	}
	h := newTestHandler(t, nil, nil, Options{PreviewDir: dir})

	req := httptest.NewRequest(http.MethodGet, "/api/voices/Kore/preview", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "audio/wav" {
		t.Fatalf("content-type = %q", got)
	}
}

func TestAPIVoicePreviewUnknownVoice(t *testing.T) {
	h := newTestHandler(t, nil, nil, Options{PreviewDir: t.TempDir()})

	req := httptest.NewRequest(http.MethodGet, "/api/voices/NotAVoice/preview", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAPIVoicePreviewMissingSample(t *testing.T) {
	h := newTestHandler(t, nil, nil, Options{PreviewDir: t.TempDir()})

	req := httptest.NewRequest(http.MethodGet, "/api/voices/Kore/preview", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAPIFlagRoundTrip(t *testing.T) {
	flags := &flagStoreStub{}
	h := newTestHandler(t, nil, flags, Options{})

	req := httptest.NewRequest(http.MethodPut, "/api/flags/mic-permission-shown", strings.NewReader(`{"enabled":true}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("put flag: expected status 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/flags/mic-permission-shown", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get flag: expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"enabled":true`) {
		t.Fatalf("expected enabled flag, got %s", rr.Body.String())
	}
}

func TestAPIFlagInvalidName(t *testing.T) {
	h := newTestHandler(t, nil, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/flags/bad%2fname", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest && rr.Code != http.StatusNotFound {
		t.Fatalf("expected rejection, got %d", rr.Code)
	}
}

func TestSPAFallbackServesIndex(t *testing.T) {
	h := newTestHandler(t, nil, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/some/client/route", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "<html>") {
		t.Fatalf("expected index.html content, got %s", rr.Body.String())
	}
}
