package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vivabot-tech/lingualive/internal/session"
)

var flagNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SessionController is the session surface the API drives.
type SessionController interface {
	Start(ctx context.Context, persona session.Persona, language, voice string) error
	Stop()
	Talk(text string) error
	SetMuted(muted bool) error
	Muted() (bool, error)
	State() (session.State, string)
}

// FlagStore persists per-feature boolean flags.
type FlagStore interface {
	GetFlag(name string) (bool, error)
	SetFlag(name string, enabled bool) error
}

func registerAPIRoutes(mux *http.ServeMux, controller SessionController, flags FlagStore, previewDir string) {
	mux.HandleFunc("POST /api/assistant/start", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Persona  string `json:"persona"`
			Language string `json:"language"`
			Voice    string `json:"voice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if req.Persona == "" {
			req.Persona = string(session.PersonaVivaBot)
		}

		err := controller.Start(r.Context(), session.Persona(req.Persona), req.Language, req.Voice)
		switch {
		case errors.Is(err, session.ErrSessionActive):
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}

		state, _ := controller.State()
		writeJSON(w, http.StatusOK, map[string]any{"state": string(state)})
	})

	mux.HandleFunc("POST /api/assistant/stop", func(w http.ResponseWriter, r *http.Request) {
		controller.Stop()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/assistant/talk", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}

		if err := controller.Talk(req.Text); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrNoActiveSession) {
				status = http.StatusConflict
			}
			writeJSONError(w, status, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/assistant/mute", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Muted bool `json:"muted"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}

		if err := controller.SetMuted(req.Muted); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrNoActiveSession) {
				status = http.StatusConflict
			}
			writeJSONError(w, status, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		state, message := controller.State()
		muted, err := controller.Muted()
		if err != nil {
			muted = false
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"state":   string(state),
			"message": message,
			"muted":   muted,
		})
	})

	mux.HandleFunc("GET /api/languages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, session.Languages)
	})

	mux.HandleFunc("GET /api/voices", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, session.Voices)
	})

	mux.HandleFunc("GET /api/voices/{voice}/preview", func(w http.ResponseWriter, r *http.Request) {
		voice := r.PathValue("voice")
		if !knownVoice(voice) {
			writeJSONError(w, http.StatusNotFound, "unknown voice")
			return
		}

		samplePath := filepath.Join(previewDir, voice+".wav")
		f, err := os.Open(samplePath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "preview not available")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat preview: %v", err))
			return
		}

		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		http.ServeContent(w, r, filepath.Base(samplePath), info.ModTime(), f)
	})

	mux.HandleFunc("GET /api/flags/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if !flagNamePattern.MatchString(name) {
			writeJSONError(w, http.StatusBadRequest, "invalid flag name")
			return
		}

		enabled, err := flags.GetFlag(name)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get flag: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": enabled})
	})

	mux.HandleFunc("PUT /api/flags/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if !flagNamePattern.MatchString(name) {
			writeJSONError(w, http.StatusBadRequest, "invalid flag name")
			return
		}

		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}

		if err := flags.SetFlag(name, req.Enabled); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("set flag: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": req.Enabled})
	})

	mux.Handle("GET /metrics", promhttp.Handler())
}

func knownVoice(voice string) bool {
	for _, v := range session.Voices {
		if v == voice {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
