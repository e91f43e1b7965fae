package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type StatusChangedEvent struct {
	Event
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

type TranscriptEvent struct {
	Event
	User  string `json:"user"`
	Model string `json:"model"`
}

type SessionStartedEvent struct {
	Event
	Persona  string `json:"persona"`
	Language string `json:"language,omitempty"`
}

type SessionEndedEvent struct {
	Event
	Duration float64 `json:"duration"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
