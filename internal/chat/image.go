package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"

	"github.com/ashureev/friendchat/internal/domain"
	"github.com/ashureev/friendchat/internal/i18n"
)

// EditImage regenerates a generated image with a modification folded into
// its original prompt. The edited image is appended as a new message.
func (c *Controller) EditImage(ctx context.Context, sessionID, messageID, modification string) (*TurnResult, error) {
	modification = strings.TrimSpace(modification)
	if modification == "" {
		return nil, fmt.Errorf("empty modification: %w", errdefs.ErrInvalidArgument)
	}
	s, err := c.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	orig := s.FindMessage(messageID)
	if orig == nil {
		return nil, fmt.Errorf("message %q: %w", messageID, errdefs.ErrNotFound)
	}
	if orig.Type != domain.MessageGeneratedImage || orig.OriginalPrompt == "" {
		return nil, fmt.Errorf("message %q is not a generated image: %w", messageID, errdefs.ErrInvalidArgument)
	}
	prompt := orig.OriginalPrompt

	seq, err := c.begin(sessionID)
	if err != nil {
		return nil, err
	}
	defer c.finish(sessionID, seq)

	ctx, cancel := c.turnContext(ctx)
	defer cancel()

	t := c.newTurn(sessionID, seq)
	c.setState(sessionID, seq, StateGeneratingImage)

	request := domain.Message{
		ID:        domain.NewMessageID("user-edit"),
		Sender:    domain.SenderUser,
		Text:      c.msgs.T(i18n.ImageEditRequest, map[string]any{"Modification": modification}),
		Timestamp: c.now(),
	}
	if _, err := t.append(ctx, request); err != nil {
		return t.result, nil
	}

	refined, err := c.ai.RefineImagePrompt(ctx, prompt, modification)
	if err != nil {
		t.fail(ctx, "refine image prompt", err)
		return t.result, nil
	}
	c.renderImage(ctx, t, "ai-edited", refined, c.msgs.T(i18n.ImageEdited, nil))
	return t.result, nil
}
