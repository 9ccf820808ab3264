package domain

import (
	"github.com/google/uuid"
)

// NewSessionID returns a fresh, time-ordered session id.
func NewSessionID() string {
	return "convo-" + newV7()
}

// NewMessageID returns a fresh, time-ordered message id with the given prefix.
func NewMessageID(prefix string) string {
	return prefix + "-" + newV7()
}

func newV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
