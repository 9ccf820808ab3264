// Package events pushes asynchronous conversation updates to connected views
// over WebSocket.
package events

import "time"

// Type names an event.
type Type string

const (
	TurnState           Type = "turn_state"
	MessageAdded        Type = "message_added"
	MessageUpdated      Type = "message_updated"
	Suggestions         Type = "suggestions"
	SessionUpdated      Type = "session_updated"
	SessionDeleted      Type = "session_deleted"
	ProfileUpdated      Type = "profile_updated"
	AchievementUnlocked Type = "achievement_unlocked"
	DailyRollover       Type = "daily_rollover"
)

// Event is one pushed update. SessionID is empty for profile-wide events.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher accepts events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(e Event) { f(e) }
