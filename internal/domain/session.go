package domain

import (
	"time"
)

// Session is one conversation thread with its own copy of the profile.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	AutoTitle   bool      `json:"autoTitle"`
	Messages    []Message `json:"messages"`
	Profile     Profile   `json:"profile"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = m.Clone()
	}
	c.Profile = s.Profile.Clone()
	return &c
}

// Summary returns the list view of the session.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Title:        s.Title,
		MessageCount: len(s.Messages),
		LastUpdated:  s.LastUpdated,
	}
}

// LastMessage returns the most recent message, or nil for an empty session.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// FindMessage returns a pointer to the message with the given id.
func (s *Session) FindMessage(id string) *Message {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return &s.Messages[i]
		}
	}
	return nil
}

// CountFrom returns the number of messages sent by sender.
func (s *Session) CountFrom(sender Sender) int {
	n := 0
	for _, m := range s.Messages {
		if m.Sender == sender {
			n++
		}
	}
	return n
}
