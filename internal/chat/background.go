package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/friendchat/internal/ai"
	"github.com/ashureev/friendchat/internal/domain"
	"github.com/ashureev/friendchat/internal/events"
)

const transcriptMessages = 6

var errTitleSettled = errors.New("title already settled")

// suggest fetches follow-up suggestions for the answer of a turn. The result
// is dropped when a newer turn has started in the meantime.
func (c *Controller) suggest(t *turn, userText string, answer domain.Message) {
	if utf8.RuneCountInString(answer.Text) < minSuggestionAIRunes ||
		utf8.RuneCountInString(userText) < minSuggestionUserRunes {
		return
	}
	p, _ := c.sessions.Profile()
	req := ai.FollowUpRequest{
		UserName: p.UserName,
		AIName:   p.AIName,
		LastUser: userText,
		LastAI:   answer.Text,
	}

	c.goTurn(t.sessionID, t.seq, func(ctx context.Context) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.BackgroundTimeout)
		defer cancel()

		list, err := c.ai.FollowUps(callCtx, req)
		if err != nil {
			c.logger.Debug("follow-up suggestions failed", "session_id", t.sessionID, "error", err)
			return
		}
		if len(list) == 0 {
			return
		}
		if c.cfg.FollowUpDelay > 0 {
			timer := time.NewTimer(c.cfg.FollowUpDelay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		c.applySuggestions(ctx, t.sessionID, t.seq, list)
	})
}

func (c *Controller) applySuggestions(ctx context.Context, sessionID string, seq uint64, list []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[sessionID]
	if !ok || st.seq != seq || ctx.Err() != nil {
		return
	}
	st.suggestions = list
	c.publish(events.Suggestions, sessionID, list)
}

// maybeTitle asks the model for a title once a chat that still carries an
// automatic title has a few messages.
func (c *Controller) maybeTitle(sessionID string) {
	s, err := c.sessions.Get(sessionID)
	if err != nil || !s.AutoTitle || len(s.Messages) < aiTitleMinMessages {
		return
	}

	c.mu.Lock()
	if c.titling[sessionID] {
		c.mu.Unlock()
		return
	}
	c.titling[sessionID] = true
	c.mu.Unlock()

	conversation := transcript(s.Messages)
	c.goBackground(func(ctx context.Context) {
		defer func() {
			c.mu.Lock()
			delete(c.titling, sessionID)
			c.mu.Unlock()
		}()

		title, err := c.ai.Title(ctx, conversation)
		if err != nil {
			c.logger.Warn("title generation failed", "session_id", sessionID, "error", err)
			return
		}
		if title == "" {
			return
		}
		s, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
			if !s.AutoTitle {
				return errTitleSettled
			}
			s.Title = title
			s.AutoTitle = false
			return nil
		})
		if err != nil {
			return
		}
		c.publish(events.SessionUpdated, sessionID, s.Summary())
	})
}

// transcript renders the latest plain messages for title generation.
func transcript(msgs []domain.Message) string {
	var lines []string
	for _, m := range msgs {
		if m.Type != domain.MessageText || strings.TrimSpace(m.Text) == "" {
			continue
		}
		lines = append(lines, string(m.Sender)+": "+m.Text)
	}
	if len(lines) > transcriptMessages {
		lines = lines[len(lines)-transcriptMessages:]
	}
	return strings.Join(lines, "\n")
}

// extractMemory asks the model for a durable fact in text and remembers it.
func (c *Controller) extractMemory(text string) {
	c.goBackground(func(ctx context.Context) {
		fact, err := c.ai.ExtractMemory(ctx, text)
		if err != nil {
			c.logger.Debug("memory extraction failed", "error", err)
			return
		}
		if fact == "" {
			return
		}
		c.updateProfile(ctx, func(p *domain.Profile) {
			if p.AddMemory(fact) {
				p.Unlock(domain.AchievementMemoryMaker)
			}
		})
	})
}

// afterDelay runs fn once d has elapsed, or right away when the controller
// shuts down first.
func (c *Controller) afterDelay(d time.Duration, fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-c.baseCtx.Done():
		}
		fn()
	}()
}
