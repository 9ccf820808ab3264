// Package ai is the boundary to the hosted generative model: chat turns,
// image generation and the structured helper calls used by the conversation
// controller.
package ai

import (
	"time"

	"github.com/ashureev/friendchat/internal/domain"
)

// Role tags a history turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one role-tagged entry of the chat history.
type Turn struct {
	Role     Role
	Text     string
	Image    []byte
	MIMEType string
}

// Persona carries the profile fields the system instruction is built from.
type Persona struct {
	UserName string
	AIName   string
	Gender   domain.Gender
	Memory   []string
	Mood     domain.Mood
}

// PersonaFrom extracts the persona of a profile.
func PersonaFrom(p domain.Profile) Persona {
	return Persona{
		UserName: p.UserName,
		AIName:   p.AIName,
		Gender:   p.AIGender,
		Memory:   p.Memory,
		Mood:     p.Mood,
	}
}

// ChatRequest is a single conversational turn.
type ChatRequest struct {
	Persona   Persona
	History   []Turn
	Message   Turn
	WebSearch bool
}

// ChatReply is the complete answer to a turn.
type ChatReply struct {
	Text    string
	Sources []domain.Source
}

// ChatChunk is one increment of a streamed answer. Sources arrive with the
// chunk that carries grounding metadata, usually the last one.
type ChatChunk struct {
	Text    string
	Sources []domain.Source
}

// GeneratedImage is the output of an image generation call.
type GeneratedImage struct {
	Data     []byte
	MIMEType string
}

// FollowUpRequest carries the last exchange of a turn.
type FollowUpRequest struct {
	UserName string
	AIName   string
	LastUser string
	LastAI   string
}

// Stats reports call counters for the health endpoint.
type Stats struct {
	Calls       int64     `json:"calls"`
	Failures    int64     `json:"failures"`
	LastFailure time.Time `json:"lastFailure,omitempty"`
}

// excludedFromHistory lists message types that never reach the model.
var excludedFromHistory = map[domain.MessageType]bool{
	domain.MessageTrivia:           true,
	domain.MessageMissionCompleted: true,
	domain.MessageGeneratedImage:   true,
	domain.MessageSourceInfo:       true,
}

// HistoryFromMessages maps stored messages to model history. The greeting
// and structured messages are skipped, and only user images are replayed.
func HistoryFromMessages(msgs []domain.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == domain.GreetingMessageID || excludedFromHistory[m.Type] {
			continue
		}
		t := Turn{Role: RoleModel, Text: m.Text}
		if m.Sender == domain.SenderUser {
			t.Role = RoleUser
			if m.Image != nil && len(m.Image.Data) > 0 && m.Image.MIMEType != "" {
				t.Image, t.MIMEType = m.Image.Data, m.Image.MIMEType
			}
		}
		if t.Text == "" && len(t.Image) == 0 {
			continue
		}
		turns = append(turns, t)
	}
	return turns
}
