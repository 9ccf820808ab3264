package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"

	"github.com/ashureev/friendchat/internal/domain"
	"github.com/ashureev/friendchat/internal/events"
	"github.com/ashureev/friendchat/internal/i18n"
)

// StartTrivia runs a trivia turn: an intro line followed by a question.
func (c *Controller) StartTrivia(ctx context.Context, sessionID string) (*TurnResult, error) {
	if _, err := c.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	seq, err := c.begin(sessionID)
	if err != nil {
		return nil, err
	}
	defer c.finish(sessionID, seq)

	ctx, cancel := c.turnContext(ctx)
	defer cancel()

	t := c.newTurn(sessionID, seq)
	c.rollDay(ctx, t)
	c.runTrivia(ctx, t)
	return t.result, nil
}

func (c *Controller) runTrivia(ctx context.Context, t *turn) {
	if _, err := t.append(ctx, c.aiMessage("ai", c.msgs.T(i18n.TriviaIntro, nil))); err != nil {
		return
	}

	q, err := c.ai.Trivia(ctx)
	if err != nil {
		t.fail(ctx, "trivia", err)
		return
	}
	msg := c.aiMessage("trivia", "")
	msg.Type = domain.MessageTrivia
	msg.Trivia = &q
	_, _ = t.append(ctx, msg)
}

// AnswerTrivia records the user's answer to a trivia message and schedules
// the verdict. A question can be answered once.
func (c *Controller) AnswerTrivia(ctx context.Context, sessionID, messageID, answer string) (*domain.Message, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("empty answer: %w", errdefs.ErrInvalidArgument)
	}

	var answered domain.Message
	_, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		m := s.FindMessage(messageID)
		if m == nil {
			return fmt.Errorf("message %q: %w", messageID, errdefs.ErrNotFound)
		}
		if m.Trivia == nil {
			return fmt.Errorf("message %q is not a trivia question: %w", messageID, errdefs.ErrInvalidArgument)
		}
		if m.Trivia.Answered() {
			return fmt.Errorf("message %q already answered: %w", messageID, errdefs.ErrConflict)
		}
		correct := answer == m.Trivia.Answer
		m.Trivia.UserAnswer = answer
		m.Trivia.IsCorrect = &correct
		answered = m.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.publish(events.MessageUpdated, sessionID, answered)

	correct := *answered.Trivia.IsCorrect
	verdict := c.msgs.T(i18n.TriviaWrong, map[string]any{"Answer": answered.Trivia.Answer})
	if correct {
		verdict = c.msgs.T(i18n.TriviaCorrect, nil)
		c.unlock(ctx, domain.AchievementTriviaMaster)
	}
	followUp := c.aiMessage("ai-resp", verdict+" "+c.msgs.T(i18n.TriviaAgain, nil))

	c.afterDelay(c.cfg.TriviaFollowUpDelay, func() {
		c.supersede(sessionID)
		if _, err := c.appendMessages(context.WithoutCancel(ctx), sessionID, followUp); err != nil {
			c.logger.Warn("trivia follow-up dropped", "session_id", sessionID, "error", err)
		}
	})
	return &answered, nil
}
