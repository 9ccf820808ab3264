package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/containerd/errdefs"
	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"

	"github.com/ashureev/friendchat/internal/ai"
	"github.com/ashureev/friendchat/internal/convlog"
	"github.com/ashureev/friendchat/internal/domain"
	"github.com/ashureev/friendchat/internal/events"
	"github.com/ashureev/friendchat/internal/i18n"
)

const (
	placeholderTitleRunes  = 40
	placeholderTitleMax    = 4
	aiTitleMinMessages     = 3
	minSuggestionAIRunes   = 20
	minSuggestionUserRunes = 10
)

var triviaKeywords = []string{"تريفيا", "اسئله", "أسئلة", "لعبة", "game", "trivia"}

// IsTriviaRequest reports whether text asks for a trivia round.
func IsTriviaRequest(text string) bool {
	lower := strings.ToLower(text)
	return lo.ContainsBy(triviaKeywords, func(k string) bool {
		return strings.Contains(lower, k)
	})
}

// Input is what the user submitted for one turn.
type Input struct {
	Text     string
	Image    []byte
	MIMEType string
	FileName string
}

// SendOptions tunes a single turn.
type SendOptions struct {
	// OnChunk, when set, streams the visible part of the answer as it
	// arrives. Text following a hidden directive is never streamed.
	OnChunk func(text string)

	// OnDiscard is called when text already streamed must be withdrawn
	// because the answer turned out to be an image request.
	OnDiscard func()
}

// TurnResult reports what a turn added to the session.
type TurnResult struct {
	SessionID string                 `json:"sessionId"`
	Messages  []domain.Message       `json:"messages"`
	Unlocked  []domain.AchievementID `json:"unlocked,omitempty"`
	Failure   string                 `json:"failure,omitempty"`
}

// turn carries the bookkeeping of one in-flight turn.
type turn struct {
	c         *Controller
	sessionID string
	seq       uint64
	result    *TurnResult
}

func (c *Controller) newTurn(sessionID string, seq uint64) *turn {
	return &turn{
		c:         c,
		sessionID: sessionID,
		seq:       seq,
		result:    &TurnResult{SessionID: sessionID, Messages: []domain.Message{}},
	}
}

func (t *turn) append(ctx context.Context, msgs ...domain.Message) (*domain.Session, error) {
	s, err := t.c.appendMessages(ctx, t.sessionID, msgs...)
	if err != nil {
		t.c.logger.WarnContext(ctx, "dropping turn messages", "session_id", t.sessionID, "error", err)
		return nil, err
	}
	t.result.Messages = append(t.result.Messages, msgs...)
	return s, nil
}

func (t *turn) updateProfile(ctx context.Context, fn func(p *domain.Profile)) {
	t.result.Unlocked = append(t.result.Unlocked, t.c.updateProfile(ctx, fn)...)
}

func (t *turn) unlock(ctx context.Context, ids ...domain.AchievementID) {
	t.result.Unlocked = append(t.result.Unlocked, t.c.unlock(ctx, ids...)...)
}

// fail turns a model error into a canned AI message. The turn ends normally.
func (t *turn) fail(ctx context.Context, op string, err error) {
	kind := ai.KindOf(err)
	t.c.logger.ErrorContext(ctx, "model call failed", "op", op, "kind", kind.String(), "session_id", t.sessionID, "error", err)
	t.c.logConversation(t.sessionID, "out", convlog.EventError, err.Error(), map[string]any{"op": op, "kind": kind.String()})
	t.result.Failure = kind.String()
	_, _ = t.append(ctx, t.c.aiMessage("err", t.c.errorText(err)))
}

// Send runs one conversation turn in a session.
func (c *Controller) Send(ctx context.Context, sessionID string, in Input, opts SendOptions) (*TurnResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Image) == 0 {
		return nil, fmt.Errorf("empty message: %w", errdefs.ErrInvalidArgument)
	}
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
	if text != "" && IsTriviaRequest(text) {
		c.runTrivia(ctx, t)
		return t.result, nil
	}

	c.touchInteraction(ctx, t)
	c.checkMission(ctx, t, text)

	userMsg := domain.Message{
		ID:        domain.NewMessageID("user"),
		Sender:    domain.SenderUser,
		Text:      text,
		Timestamp: c.now(),
		FileName:  in.FileName,
	}
	if len(in.Image) > 0 {
		mime := in.MIMEType
		if mime == "" {
			mime = mimetype.Detect(in.Image).String()
		}
		if !strings.HasPrefix(mime, "image/") {
			c.logger.WarnContext(ctx, "unsupported attachment", "session_id", sessionID, "mime", mime, "file", in.FileName)
			_, _ = t.append(ctx, c.aiMessage("error-file", c.msgs.T(i18n.FileReadError, nil)))
			return t.result, nil
		}
		userMsg.Image = &domain.Image{Data: in.Image, MIMEType: mime}
	}

	before, err := c.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	history := ai.HistoryFromMessages(before.Messages)

	s, err := t.append(ctx, userMsg)
	if err != nil {
		return t.result, nil
	}
	c.logConversation(sessionID, "in", convlog.EventUserMessage, text, nil)
	c.provisionalTitle(ctx, before, text)
	if s.CountFrom(domain.SenderUser) >= domain.ChattyUserThreshold {
		t.unlock(ctx, domain.AchievementChattyUser)
	}

	profile, _ := c.sessions.Profile()
	req := ai.ChatRequest{
		Persona:   ai.PersonaFrom(profile),
		History:   history,
		Message:   ai.Turn{Role: ai.RoleUser, Text: text},
		WebSearch: c.cfg.WebSearch,
	}
	if userMsg.Image != nil {
		req.Message.Image, req.Message.MIMEType = userMsg.Image.Data, userMsg.Image.MIMEType
	}

	var (
		raw     string
		sources []domain.Source
	)
	if opts.OnChunk != nil {
		raw, sources, err = c.stream(ctx, t, req, opts)
	} else {
		var rep *ai.ChatReply
		if rep, err = c.ai.Chat(ctx, req); err == nil {
			raw, sources = rep.Text, rep.Sources
		}
	}
	if err != nil {
		t.fail(ctx, "chat", err)
		return t.result, nil
	}
	c.logConversation(sessionID, "out", convlog.EventAIMessage, raw, nil)

	c.handleReply(ctx, t, text, raw, sources)
	c.maybeTitle(sessionID)
	return t.result, nil
}

func (c *Controller) stream(ctx context.Context, t *turn, req ai.ChatRequest, opts SendOptions) (string, []domain.Source, error) {
	var (
		full    strings.Builder
		sources []domain.Source
		shown   int
		started bool
	)
	for chunk, err := range c.ai.ChatStream(ctx, req) {
		if err != nil {
			return "", nil, err
		}
		if !started {
			c.setState(t.sessionID, t.seq, StateStreaming)
			started = true
		}
		full.WriteString(chunk.Text)
		sources = append(sources, chunk.Sources...)

		if visible := visiblePrefix(full.String()); len(visible) > shown {
			opts.OnChunk(visible[shown:])
			shown = len(visible)
		}
	}
	raw := full.String()
	if shown > 0 && opts.OnDiscard != nil && parseReply(raw).ImagePrompt != "" {
		opts.OnDiscard()
	}
	return raw, sources, nil
}

// handleReply applies the hidden directives of an answer and appends the
// resulting messages.
func (c *Controller) handleReply(ctx context.Context, t *turn, userText, raw string, sources []domain.Source) {
	r := parseReply(raw)

	if len(r.Facts) > 0 {
		t.updateProfile(ctx, func(p *domain.Profile) {
			added := false
			for _, f := range r.Facts {
				added = p.AddMemory(f) || added
			}
			if added {
				p.Unlock(domain.AchievementMemoryMaker)
			}
		})
	} else if c.cfg.MemoryExtraction && utf8.RuneCountInString(userText) >= minSuggestionUserRunes {
		c.extractMemory(userText)
	}

	if r.ImagePrompt != "" {
		c.setState(t.sessionID, t.seq, StateGeneratingImage)
		msg, ok := c.renderImage(ctx, t, "ai-gen", r.ImagePrompt, c.msgs.T(i18n.ImageGenerated, nil))
		if ok {
			c.suggest(t, userText, msg)
		}
		return
	}

	if r.Text != "" || r.ImageURL != "" {
		msg := c.aiMessage("ai", r.Text)
		if r.ImageURL != "" {
			msg.Image = &domain.Image{URL: r.ImageURL}
		}
		if _, err := t.append(ctx, msg); err == nil && msg.Text != "" {
			c.suggest(t, userText, msg)
		}
	}

	if text := sourcesText(c.msgs.T(i18n.SourcesHeader, nil), sources); text != "" {
		msg := c.aiMessage("source", text)
		msg.Type = domain.MessageSourceInfo
		msg.Sources = sources
		_, _ = t.append(ctx, msg)
	}
}

// renderImage generates an image for prompt and appends it as a new AI
// message. Failures are reported in the conversation.
func (c *Controller) renderImage(ctx context.Context, t *turn, prefix, prompt, caption string) (domain.Message, bool) {
	img, err := c.ai.GenerateImage(ctx, prompt)
	if err != nil {
		t.fail(ctx, "generate image", err)
		return domain.Message{}, false
	}
	msg := c.aiMessage(prefix, caption)
	msg.Type = domain.MessageGeneratedImage
	msg.Image = &domain.Image{Data: img.Data, MIMEType: img.MIMEType}
	msg.OriginalPrompt = prompt
	if _, err := t.append(ctx, msg); err != nil {
		return domain.Message{}, false
	}
	t.unlock(ctx, domain.AchievementImageCreator)
	return msg, true
}

// rollDay runs the daily rollover when the day changed since the last one,
// so the interaction date written by the turn cannot hide the new day.
func (c *Controller) rollDay(ctx context.Context, t *turn) {
	if c.roller == nil {
		return
	}
	p, ok := c.sessions.Profile()
	if !ok || p.LastReconciledDate == c.today() {
		return
	}
	res, err := c.roller.Reconcile(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "daily rollover failed", "session_id", t.sessionID, "error", err)
		return
	}
	if !res.Changed {
		return
	}
	t.result.Unlocked = append(t.result.Unlocked, res.Unlocked...)
	c.publish(events.DailyRollover, "", res)
	c.publish(events.ProfileUpdated, "", res.Profile)
	for _, id := range res.Unlocked {
		if a, ok := domain.LookupAchievement(id); ok {
			c.publish(events.AchievementUnlocked, "", a)
		}
	}
}

func (c *Controller) touchInteraction(ctx context.Context, t *turn) {
	today := c.today()
	p, ok := c.sessions.Profile()
	if !ok || p.LastInteractionDate == today {
		return
	}
	t.updateProfile(ctx, func(p *domain.Profile) { p.LastInteractionDate = today })
}

func (c *Controller) checkMission(ctx context.Context, t *turn, text string) {
	p, ok := c.sessions.Profile()
	if !ok || p.DailyMission.Completed || p.DailyMission.Keyword == "" {
		return
	}
	if !strings.Contains(strings.ToLower(text), p.DailyMission.Keyword) {
		return
	}
	t.updateProfile(ctx, func(p *domain.Profile) {
		p.DailyMission.Completed = true
		p.Unlock(domain.AchievementFirstMission)
	})
	msg := c.aiMessage("mission", c.msgs.T(i18n.MissionCompleted, nil))
	msg.Type = domain.MessageMissionCompleted
	_, _ = t.append(ctx, msg)
}

// provisionalTitle names a fresh chat after its first input.
func (c *Controller) provisionalTitle(ctx context.Context, before *domain.Session, text string) {
	if text == "" || !before.AutoTitle || len(before.Messages) >= placeholderTitleMax ||
		before.Title != c.msgs.T(i18n.TitleNewChat, nil) {
		return
	}
	title := truncateRunes(text, placeholderTitleRunes)
	s, err := c.sessions.Update(ctx, before.ID, func(s *domain.Session) error {
		s.Title = title
		return nil
	})
	if err != nil {
		return
	}
	c.publish(events.SessionUpdated, s.ID, s.Summary())
}
