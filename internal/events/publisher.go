package events

import (
	"time"

	"github.com/princekumarofficial/video-service/internal/types"
)

// Publisher pushes video lifecycle events to their owners.
type Publisher interface {
	PublishStatusChanged(ownerID, videoID string, state types.ProcessingState, duration *float64) error
	PublishVideoDeleted(ownerID, videoID string) error
}

// WebSocketHub interface for the WebSocket hub
type WebSocketHub interface {
	BroadcastToUser(userID string, event *types.Event)
	IsUserConnected(userID string) bool
}

// EventPublisher implements the Publisher interface
type EventPublisher struct {
	hub WebSocketHub
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(hub WebSocketHub) *EventPublisher {
	return &EventPublisher{
		hub: hub,
	}
}

// PublishStatusChanged tells the owner about a processing transition.
func (p *EventPublisher) PublishStatusChanged(ownerID, videoID string, state types.ProcessingState, duration *float64) error {
	// Only send if the owner is connected
	if !p.hub.IsUserConnected(ownerID) {
		return nil
	}

	eventData := &types.VideoStatusEvent{
		VideoID:         videoID,
		Status:          state.Status,
		Reason:          state.Reason,
		DurationSeconds: duration,
	}

	p.hub.BroadcastToUser(ownerID, types.NewEvent(types.EventVideoStatusChanged, eventData))
	return nil
}

func (p *EventPublisher) PublishVideoDeleted(ownerID, videoID string) error {
	if !p.hub.IsUserConnected(ownerID) {
		return nil
	}

	eventData := &types.VideoDeletedEvent{
		VideoID:   videoID,
		DeletedAt: time.Now().UTC().Format(time.RFC3339),
	}

	p.hub.BroadcastToUser(ownerID, types.NewEvent(types.EventVideoDeleted, eventData))
	return nil
}

// Nop discards every event. It stands in when no hub is running.
type Nop struct{}

func (Nop) PublishStatusChanged(string, string, types.ProcessingState, *float64) error { return nil }

func (Nop) PublishVideoDeleted(string, string) error { return nil }
