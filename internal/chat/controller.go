// Package chat runs conversation turns: it appends user messages, calls the
// model, interprets the hidden directives in replies and keeps the per-session
// turn state.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/containerd/errdefs"

	"github.com/ashureev/friendchat/internal/ai"
	"github.com/ashureev/friendchat/internal/convlog"
	"github.com/ashureev/friendchat/internal/daily"
	"github.com/ashureev/friendchat/internal/domain"
	"github.com/ashureev/friendchat/internal/events"
	"github.com/ashureev/friendchat/internal/i18n"
)

// State is the turn state of one session.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
	StateStreaming        State = "streaming"
	StateGeneratingImage  State = "generating_image"

	// stateRemoving marks a session that is being deleted.
	stateRemoving State = "removing"
)

// Sessions is the part of the session repository the controller writes to.
type Sessions interface {
	Get(id string) (*domain.Session, error)
	Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error)
	Profile() (domain.Profile, bool)
	UpdateProfile(ctx context.Context, fn func(*domain.Profile) error) (domain.Profile, error)
}

// DayRoller applies the daily rollover. A turn on a new calendar day runs it
// before touching the interaction date.
type DayRoller interface {
	Reconcile(ctx context.Context) (daily.Result, error)
}

// Config tunes controller behaviour.
type Config struct {
	Location            *time.Location
	FollowUpDelay       time.Duration
	TriviaFollowUpDelay time.Duration
	BackgroundTimeout   time.Duration
	MemoryExtraction    bool
	WebSearch           bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Location:            time.Local,
		FollowUpDelay:       500 * time.Millisecond,
		TriviaFollowUpDelay: 500 * time.Millisecond,
		BackgroundTimeout:   30 * time.Second,
		WebSearch:           true,
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithPublisher sets the event sink.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.events = p }
}

// WithDayRoller sets the daily rollover run at the start of a new day.
func WithDayRoller(r DayRoller) Option {
	return func(c *Controller) { c.roller = r }
}

// WithConversationLog sets the conversation log.
func WithConversationLog(l convlog.Logger) Option {
	return func(c *Controller) { c.convlog = l }
}

type sessionState struct {
	state       State
	seq         uint64
	bgCtx       context.Context
	bgCancel    context.CancelFunc
	suggestions []string
}

// Controller drives conversation turns. A session has at most one turn in
// flight; results always land in the session that started the turn.
type Controller struct {
	sessions Sessions
	ai       ai.Client
	msgs     *i18n.Catalog
	cfg      Config
	logger   *slog.Logger
	events   events.Publisher
	convlog  convlog.Logger
	roller   DayRoller
	now      func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	states  map[string]*sessionState
	titling map[string]bool
	closed  bool
}

// New creates a Controller.
func New(sessions Sessions, client ai.Client, msgs *i18n.Catalog, cfg Config, opts ...Option) *Controller {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = DefaultConfig().BackgroundTimeout
	}
	ctx, stop := context.WithCancel(context.Background())
	c := &Controller{
		sessions: sessions,
		ai:       client,
		msgs:     msgs,
		cfg:      cfg,
		logger:   slog.Default(),
		events:   events.Nop{},
		convlog:  convlog.Nop{},
		now:      time.Now,
		baseCtx:  ctx,
		stop:     stop,
		states:   make(map[string]*sessionState),
		titling:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the turn state of a session.
func (c *Controller) State(sessionID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[sessionID]; ok {
		return st.state
	}
	return StateIdle
}

// Suggestions returns the follow-up suggestions of the latest turn.
func (c *Controller) Suggestions(sessionID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[sessionID]; ok {
		return slices.Clone(st.suggestions)
	}
	return nil
}

// Remove claims the idle sessions in ids, runs remove and drops their turn
// state. It fails with ErrConflict when any of them has a turn in flight;
// turns cannot start while remove runs.
func (c *Controller) Remove(ids []string, remove func() error) error {
	c.mu.Lock()
	for _, id := range ids {
		if st, ok := c.states[id]; ok && st.state != StateIdle {
			c.mu.Unlock()
			return fmt.Errorf("session %q has a turn in flight: %w", id, errdefs.ErrConflict)
		}
	}
	for _, id := range ids {
		c.stateLocked(id).state = stateRemoving
	}
	c.mu.Unlock()

	err := remove()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		st := c.states[id]
		if err != nil {
			st.state = StateIdle
			continue
		}
		if st.bgCancel != nil {
			st.bgCancel()
		}
		delete(c.states, id)
		delete(c.titling, id)
	}
	return err
}

// Close cancels in-flight and background work and waits for it to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	for _, st := range c.states {
		if st.bgCancel != nil {
			st.bgCancel()
		}
	}
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}

func (c *Controller) stateLocked(sessionID string) *sessionState {
	st, ok := c.states[sessionID]
	if !ok {
		st = &sessionState{state: StateIdle}
		c.states[sessionID] = st
	}
	return st
}

// begin claims the session for a new turn. It supersedes the background work
// and suggestions of the previous turn.
func (c *Controller) begin(sessionID string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, fmt.Errorf("controller closed: %w", errdefs.ErrUnavailable)
	}
	// Checked under the lock so a concurrent Remove either sees the claim or
	// has already deleted the session.
	if _, err := c.sessions.Get(sessionID); err != nil {
		return 0, err
	}
	st := c.stateLocked(sessionID)
	if st.state != StateIdle {
		return 0, fmt.Errorf("session %q has a turn in flight: %w", sessionID, errdefs.ErrConflict)
	}
	st.state = StateAwaitingResponse
	st.seq++
	if st.bgCancel != nil {
		st.bgCancel()
		st.bgCtx, st.bgCancel = nil, nil
	}
	if st.suggestions != nil {
		st.suggestions = nil
		c.publish(events.Suggestions, sessionID, []string{})
	}
	c.wg.Add(1)
	c.publish(events.TurnState, sessionID, StateAwaitingResponse)
	return st.seq, nil
}

// supersede retires the suggestions and background work of the last turn
// when a message lands outside a turn. A turn in flight has already done so.
func (c *Controller) supersede(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[sessionID]
	if !ok || st.state != StateIdle {
		return
	}
	st.seq++
	if st.bgCancel != nil {
		st.bgCancel()
		st.bgCtx, st.bgCancel = nil, nil
	}
	if st.suggestions != nil {
		st.suggestions = nil
		c.publish(events.Suggestions, sessionID, []string{})
	}
}

func (c *Controller) setState(sessionID string, seq uint64, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateLocked(sessionID)
	if st.seq != seq || st.state == s {
		return
	}
	st.state = s
	c.publish(events.TurnState, sessionID, s)
}

func (c *Controller) finish(sessionID string, seq uint64) {
	c.setState(sessionID, seq, StateIdle)
	c.wg.Done()
}

// turnContext detaches the turn from the caller's cancellation; a turn that
// started always completes unless the controller shuts down.
func (c *Controller) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.baseCtx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

// goTurn runs fn in the background with a context that is cancelled once a
// newer turn starts in the session.
func (c *Controller) goTurn(sessionID string, seq uint64, fn func(ctx context.Context)) {
	c.mu.Lock()
	st := c.stateLocked(sessionID)
	if c.closed || st.seq != seq {
		c.mu.Unlock()
		return
	}
	if st.bgCtx == nil {
		st.bgCtx, st.bgCancel = context.WithCancel(c.baseCtx)
	}
	ctx := st.bgCtx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

// goBackground runs fn in the background until the controller closes.
func (c *Controller) goBackground(fn func(ctx context.Context)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.BackgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (c *Controller) publish(t events.Type, sessionID string, data any) {
	c.events.Publish(events.Event{Type: t, SessionID: sessionID, Data: data, Time: c.now()})
}

func (c *Controller) today() string {
	return domain.DateOf(c.now(), c.cfg.Location)
}

// appendMessages adds msgs to the session and announces them.
func (c *Controller) appendMessages(ctx context.Context, sessionID string, msgs ...domain.Message) (*domain.Session, error) {
	s, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		s.Messages = append(s.Messages, msgs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		c.publish(events.MessageAdded, sessionID, m)
	}
	c.publish(events.SessionUpdated, sessionID, s.Summary())
	return s, nil
}

// updateProfile applies fn through the single profile writer and returns the
// achievements it newly unlocked.
func (c *Controller) updateProfile(ctx context.Context, fn func(p *domain.Profile)) []domain.AchievementID {
	var unlocked []domain.AchievementID
	before, _ := c.sessions.Profile()
	p, err := c.sessions.UpdateProfile(ctx, func(p *domain.Profile) error {
		had := len(p.UnlockedAchievements)
		fn(p)
		unlocked = slices.Clone(p.UnlockedAchievements[had:])
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "profile update failed", "error", err)
		return nil
	}
	if !p.Equal(before) {
		c.publish(events.ProfileUpdated, "", p)
	}
	for _, id := range unlocked {
		if a, ok := domain.LookupAchievement(id); ok {
			c.publish(events.AchievementUnlocked, "", a)
		}
		c.logger.InfoContext(ctx, "achievement unlocked", "achievement", id)
	}
	return unlocked
}

func (c *Controller) unlock(ctx context.Context, ids ...domain.AchievementID) []domain.AchievementID {
	p, ok := c.sessions.Profile()
	if !ok {
		return nil
	}
	pending := false
	for _, id := range ids {
		if !p.HasAchievement(id) {
			pending = true
		}
	}
	if !pending {
		return nil
	}
	return c.updateProfile(ctx, func(p *domain.Profile) {
		for _, id := range ids {
			p.Unlock(id)
		}
	})
}

func (c *Controller) aiMessage(prefix, text string) domain.Message {
	return domain.Message{
		ID:        domain.NewMessageID(prefix),
		Sender:    domain.SenderAI,
		Text:      text,
		Timestamp: c.now(),
	}
}

// errorText maps a model failure to its localized canned message.
func (c *Controller) errorText(err error) string {
	switch ai.KindOf(err) {
	case ai.NetworkFailure:
		return c.msgs.T(i18n.ErrorNetwork, nil)
	case ai.SafetyRejection:
		return c.msgs.T(i18n.ErrorSafety, nil)
	case ai.ServerFailure:
		return c.msgs.T(i18n.ErrorServer, nil)
	case ai.ParseFailure:
		return c.msgs.T(i18n.ErrorParse, nil)
	default:
		return c.msgs.T(i18n.ErrorGeneric, nil)
	}
}

func (c *Controller) logConversation(sessionID, direction, eventType, raw string, meta map[string]any) {
	c.convlog.Log(convlog.Event{
		Timestamp:  c.now().UTC().Format(time.RFC3339Nano),
		SessionID:  sessionID,
		Channel:    "chat",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: raw,
		Content:    convlog.CleanForReadability(raw),
		Meta:       meta,
	})
}
