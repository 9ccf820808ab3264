package domain

import "slices"

// Trivia is a multiple-choice question embedded in an AI message.
type Trivia struct {
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	Answer     string   `json:"answer"`
	UserAnswer string   `json:"userAnswer,omitempty"`
	IsCorrect  *bool    `json:"isCorrect,omitempty"`
}

// Answered reports whether the user has already picked an option.
func (t *Trivia) Answered() bool {
	return t.UserAnswer != "" || t.IsCorrect != nil
}

// Clone returns a deep copy of the trivia payload.
func (t Trivia) Clone() Trivia {
	t.Options = slices.Clone(t.Options)
	if t.IsCorrect != nil {
		v := *t.IsCorrect
		t.IsCorrect = &v
	}
	return t
}
