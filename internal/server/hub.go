package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/vivabot-tech/lingualive/internal/session"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastStatusChanged(state session.State, message string) {
	h.broadcastEvent(StatusChangedEvent{
		Event:   newEvent("status_changed", time.Now().UTC()),
		State:   string(state),
		Message: message,
	})
}

func (h *Hub) BroadcastTranscript(t session.Transcript) {
	h.broadcastEvent(TranscriptEvent{
		Event: newEvent("transcript", time.Now().UTC()),
		User:  t.User,
		Model: t.Model,
	})
}

func (h *Hub) BroadcastSessionStarted(persona session.Persona, language string) {
	h.broadcastEvent(SessionStartedEvent{
		Event:    newEvent("session_started", time.Now().UTC()),
		Persona:  string(persona),
		Language: language,
	})
}

func (h *Hub) BroadcastSessionEnded(duration time.Duration) {
	h.broadcastEvent(SessionEndedEvent{
		Event:    newEvent("session_ended", time.Now().UTC()),
		Duration: duration.Seconds(),
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
