package types

import "time"

// EventType represents the type of real-time event
type EventType string

const (
	EventVideoStatusChanged EventType = "video.status_changed"
	EventVideoDeleted       EventType = "video.deleted"
)

// Event represents a real-time event that can be sent over WebSocket
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// VideoStatusEvent is pushed to the owner on every processing transition.
type VideoStatusEvent struct {
	VideoID         string           `json:"video_id"`
	Status          ProcessingStatus `json:"status"`
	Reason          string           `json:"reason,omitempty"`
	DurationSeconds *float64         `json:"duration,omitempty"`
}

type VideoDeletedEvent struct {
	VideoID   string `json:"video_id"`
	DeletedAt string `json:"deleted_at"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
