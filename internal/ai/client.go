package ai

import (
	"context"
	"iter"

	"github.com/ashureev/friendchat/internal/domain"
)

// Client defines the calls the conversation controller makes to the model.
// Every error returned is an *Error.
type Client interface {
	// Chat sends one turn and waits for the full answer.
	Chat(ctx context.Context, req ChatRequest) (*ChatReply, error)

	// ChatStream sends one turn and yields the answer incrementally.
	ChatStream(ctx context.Context, req ChatRequest) iter.Seq2[*ChatChunk, error]

	// GenerateImage renders prompt into an image.
	GenerateImage(ctx context.Context, prompt string) (*GeneratedImage, error)

	// RefineImagePrompt merges a modification request into an image prompt.
	RefineImagePrompt(ctx context.Context, original, modification string) (string, error)

	// Trivia produces a multiple-choice question.
	Trivia(ctx context.Context) (domain.Trivia, error)

	// DailyMission produces a mission with a completion keyword.
	DailyMission(ctx context.Context) (domain.DailyMission, error)

	// Title summarizes a conversation into a short title.
	Title(ctx context.Context, conversation string) (string, error)

	// ExtractMemory pulls one durable fact about the user out of text.
	// It returns "" when nothing worth remembering was found.
	ExtractMemory(ctx context.Context, text string) (string, error)

	// FollowUps suggests up to three next prompts for the user.
	FollowUps(ctx context.Context, req FollowUpRequest) ([]string, error)

	// Stats returns call counters.
	Stats() Stats

	// Close releases resources.
	Close()
}

// Ensure Gemini implements Client.
var _ Client = (*Gemini)(nil)
