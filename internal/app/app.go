// Package app owns the application state: the session repository, the
// conversation controller, the daily reconciler and the active session.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/samber/lo"

	"github.com/ashureev/friendchat/internal/chat"
	"github.com/ashureev/friendchat/internal/daily"
	"github.com/ashureev/friendchat/internal/domain"
	"github.com/ashureev/friendchat/internal/events"
	"github.com/ashureev/friendchat/internal/i18n"
	"github.com/ashureev/friendchat/internal/sessions"
)

// Phase is the top-level screen the application is in.
type Phase string

const (
	PhaseSetup Phase = "setup"
	PhaseChat  Phase = "chat"
)

// Deps are the components the application state is built from.
type Deps struct {
	Sessions   *sessions.Repository
	Chat       *chat.Controller
	Reconciler *daily.Reconciler
	Messages   *i18n.Catalog
	Events     events.Publisher
	Logger     *slog.Logger
}

// Option configures an App.
type Option func(*App)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithRand sets the source used to pick new-chat greetings.
func WithRand(rng *rand.Rand) Option {
	return func(a *App) { a.rng = rng }
}

// WithCheckInterval sets how often the daily worker re-checks the date.
// Zero disables the worker.
func WithCheckInterval(d time.Duration) Option {
	return func(a *App) { a.checkInterval = d }
}

// App is the explicit application-state object.
type App struct {
	sessions   *sessions.Repository
	chat       *chat.Controller
	reconciler *daily.Reconciler
	msgs       *i18n.Catalog
	events     events.Publisher
	logger     *slog.Logger
	now        func() time.Time

	checkInterval time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	mu         sync.RWMutex
	activeID   string
	stopWorker context.CancelFunc
}

// New creates an App.
func New(deps Deps, opts ...Option) *App {
	a := &App{
		sessions:      deps.Sessions,
		chat:          deps.Chat,
		reconciler:    deps.Reconciler,
		msgs:          deps.Messages,
		events:        deps.Events,
		logger:        deps.Logger,
		now:           time.Now,
		checkInterval: 5 * time.Minute,
		rng:           rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	if a.events == nil {
		a.events = events.Nop{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Chat returns the conversation controller.
func (a *App) Chat() *chat.Controller {
	return a.chat
}

// Start reconciles the daily state, selects the most recent session and
// starts the rollover worker.
func (a *App) Start(ctx context.Context) error {
	if _, ok := a.sessions.Profile(); ok {
		res, err := a.reconciler.Reconcile(ctx)
		if err != nil {
			return fmt.Errorf("reconcile daily state: %w", err)
		}
		a.logger.Info("daily state reconciled",
			"today", res.Today, "changed", res.Changed, "streak", res.Streak, "fallback", res.FallbackUsed)
	}

	if latest := a.sessions.Latest(); latest != nil {
		a.setActive(latest.ID)
	}

	if a.checkInterval > 0 {
		workerCtx, cancel := context.WithCancel(ctx)
		a.mu.Lock()
		a.stopWorker = cancel
		a.mu.Unlock()
		daily.StartWorker(workerCtx, a.reconciler, a.checkInterval, a.onRollover)
	}
	return nil
}

func (a *App) onRollover(res daily.Result) {
	a.events.Publish(events.Event{Type: events.DailyRollover, Data: res, Time: a.now()})
	a.events.Publish(events.Event{Type: events.ProfileUpdated, Data: res.Profile, Time: a.now()})
}

// Close stops background work.
func (a *App) Close() {
	a.mu.Lock()
	stop := a.stopWorker
	a.stopWorker = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
	a.chat.Close()
}

// State is a snapshot of the application for the view.
type State struct {
	Phase           Phase                   `json:"phase"`
	ActiveSessionID string                  `json:"activeSessionId,omitempty"`
	Today           string                  `json:"today"`
	Profile         *domain.Profile         `json:"profile,omitempty"`
	StoredProfile   *domain.Profile         `json:"storedProfile,omitempty"`
	Sessions        []domain.SessionSummary `json:"sessions"`
}

// State returns the current application snapshot.
func (a *App) State() State {
	st := State{
		Phase:           PhaseSetup,
		ActiveSessionID: a.ActiveID(),
		Today:           a.reconciler.Today(),
		Sessions:        a.sessions.Summaries(),
	}
	if p, ok := a.sessions.Profile(); ok {
		st.Profile = &p
	}
	if len(st.Sessions) > 0 {
		st.Phase = PhaseChat
	} else if p, ok := a.sessions.StoredProfile(); ok {
		st.StoredProfile = &p
	}
	return st
}

// ActiveID returns the id of the selected session, or "" in setup.
func (a *App) ActiveID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeID
}

func (a *App) setActive(id string) {
	a.mu.Lock()
	a.activeID = id
	a.mu.Unlock()
}

// SetupInput is the onboarding form.
type SetupInput struct {
	UserName string        `json:"userName"`
	AIName   string        `json:"aiName"`
	AIGender domain.Gender `json:"aiGender,omitempty"`
}

// Setup creates the profile and the first session.
func (a *App) Setup(ctx context.Context, in SetupInput) (*domain.Session, error) {
	userName := strings.TrimSpace(in.UserName)
	aiName := strings.TrimSpace(in.AIName)
	if userName == "" || aiName == "" {
		return nil, fmt.Errorf("user and companion names are required: %w", errdefs.ErrInvalidArgument)
	}
	if in.AIGender != "" && !in.AIGender.Valid() {
		return nil, fmt.Errorf("unknown gender %q: %w", in.AIGender, errdefs.ErrInvalidArgument)
	}
	if a.sessions.Len() > 0 {
		return nil, fmt.Errorf("already set up: %w", errdefs.ErrAlreadyExists)
	}

	userAvatar, aiAvatar := domain.AvatarURLs(userName, aiName)
	now := a.now()
	profile := domain.Profile{
		UserName:           userName,
		AIName:             aiName,
		AIGender:           in.AIGender,
		UserAvatar:         userAvatar,
		AIAvatar:           aiAvatar,
		ChatBackground:     domain.DefaultChatBackground,
		Memory:             []string{},
		LastReconciledDate: a.reconciler.Today(),
		DailyMission:       domain.DailyMission{Completed: true},
	}
	profile.Unlock(domain.AchievementFirstOnboarding)

	names := map[string]any{"User": userName, "AI": aiName}
	s, err := a.sessions.Create(ctx, &domain.Session{
		ID:    domain.NewSessionID(),
		Title: a.msgs.T(i18n.TitleSetup, names),
		Messages: []domain.Message{{
			ID:        domain.GreetingMessageID,
			Sender:    domain.SenderAI,
			Text:      a.msgs.T(i18n.GreetingSetup, names),
			Timestamp: now,
		}},
		Profile:     profile,
		CreatedAt:   now,
		LastUpdated: now,
	})
	if err != nil {
		return nil, err
	}

	a.setActive(s.ID)
	a.logger.InfoContext(ctx, "setup complete", "session_id", s.ID)
	a.publish(events.SessionUpdated, s.ID, s.Summary())
	a.publish(events.ProfileUpdated, "", s.Profile)
	if ach, ok := domain.LookupAchievement(domain.AchievementFirstOnboarding); ok {
		a.publish(events.AchievementUnlocked, "", ach)
	}
	return s, nil
}

// NewChat starts a new session greeted with one of the new-chat greetings.
func (a *App) NewChat(ctx context.Context) (*domain.Session, error) {
	p, ok := a.sessions.Profile()
	if !ok {
		return nil, fmt.Errorf("setup required: %w", errdefs.ErrFailedPrecondition)
	}

	a.rngMu.Lock()
	greeting := i18n.NewChatGreetings[a.rng.IntN(len(i18n.NewChatGreetings))]
	a.rngMu.Unlock()

	now := a.now()
	s, err := a.sessions.Create(ctx, &domain.Session{
		ID:        domain.NewSessionID(),
		Title:     a.msgs.T(i18n.TitleNewChat, nil),
		AutoTitle: true,
		Messages: []domain.Message{{
			ID:        domain.GreetingMessageID,
			Sender:    domain.SenderAI,
			Text:      a.msgs.T(greeting, map[string]any{"User": p.UserName, "AI": p.AIName}),
			Timestamp: now,
		}},
		CreatedAt:   now,
		LastUpdated: now,
	})
	if err != nil {
		return nil, err
	}
	a.setActive(s.ID)
	a.publish(events.SessionUpdated, s.ID, s.Summary())
	return s, nil
}

// Session returns a copy of a session.
func (a *App) Session(id string) (*domain.Session, error) {
	return a.sessions.Get(id)
}

// Select makes id the active session.
func (a *App) Select(id string) (*domain.Session, error) {
	s, err := a.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	a.setActive(id)
	return s, nil
}

// Delete removes a session. Deleting the active session selects the most
// recent remaining one; deleting the last session returns to setup.
func (a *App) Delete(ctx context.Context, id string) error {
	err := a.chat.Remove([]string{id}, func() error {
		return a.sessions.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	a.publish(events.SessionDeleted, id, nil)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeID != id {
		return nil
	}
	a.activeID = ""
	if latest := a.sessions.Latest(); latest != nil {
		a.activeID = latest.ID
	}
	return nil
}

// ClearAll deletes every session and returns to setup. The profile is kept
// as the stored profile that prefills the next setup.
func (a *App) ClearAll(ctx context.Context) (int, error) {
	ids := lo.Map(a.sessions.Summaries(), func(s domain.SessionSummary, _ int) string { return s.ID })
	var removed int
	err := a.chat.Remove(ids, func() error {
		n, err := a.sessions.Clear(ctx)
		removed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		a.publish(events.SessionDeleted, id, nil)
	}
	a.setActive("")
	a.logger.Info("all sessions cleared", "count", removed)
	return removed, nil
}

// SettingsInput carries the settings form. Nil fields are left unchanged.
type SettingsInput struct {
	UserName             *string        `json:"userName,omitempty"`
	AIName               *string        `json:"aiName,omitempty"`
	AIGender             *domain.Gender `json:"aiGender,omitempty"`
	ChatBackground       *string        `json:"chatBackground,omitempty"`
	NotificationsEnabled *bool          `json:"notificationsEnabled,omitempty"`
	Memory               *[]string      `json:"memory,omitempty"`
}

// SaveSettings merges in into the profile of every session. Avatars follow
// the names.
func (a *App) SaveSettings(ctx context.Context, in SettingsInput) (domain.Profile, error) {
	if in.UserName != nil && strings.TrimSpace(*in.UserName) == "" {
		return domain.Profile{}, fmt.Errorf("user name cannot be empty: %w", errdefs.ErrInvalidArgument)
	}
	if in.AIName != nil && strings.TrimSpace(*in.AIName) == "" {
		return domain.Profile{}, fmt.Errorf("companion name cannot be empty: %w", errdefs.ErrInvalidArgument)
	}
	if in.AIGender != nil && *in.AIGender != "" && !in.AIGender.Valid() {
		return domain.Profile{}, fmt.Errorf("unknown gender %q: %w", *in.AIGender, errdefs.ErrInvalidArgument)
	}

	p, err := a.sessions.UpdateProfile(ctx, func(p *domain.Profile) error {
		if in.UserName != nil {
			p.UserName = strings.TrimSpace(*in.UserName)
		}
		if in.AIName != nil {
			p.AIName = strings.TrimSpace(*in.AIName)
		}
		if in.AIGender != nil {
			p.AIGender = *in.AIGender
		}
		if in.ChatBackground != nil {
			p.ChatBackground = *in.ChatBackground
		}
		if in.NotificationsEnabled != nil {
			p.NotificationsEnabled = *in.NotificationsEnabled
		}
		if in.Memory != nil {
			p.Memory = lo.Uniq(lo.Compact(lo.Map(*in.Memory, func(m string, _ int) string {
				return strings.TrimSpace(m)
			})))
		}
		p.UserAvatar, p.AIAvatar = domain.AvatarURLs(p.UserName, p.AIName)
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	a.publish(events.ProfileUpdated, "", p)
	return p, nil
}

// SetMood records how the user feels today.
func (a *App) SetMood(ctx context.Context, mood domain.Mood) (domain.Profile, error) {
	if !mood.Valid() {
		return domain.Profile{}, fmt.Errorf("unknown mood %q: %w", mood, errdefs.ErrInvalidArgument)
	}
	p, err := a.sessions.UpdateProfile(ctx, func(p *domain.Profile) error {
		p.Mood = mood
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	a.publish(events.ProfileUpdated, "", p)
	return p, nil
}

// AchievementStatus is a catalog entry with its unlock flag.
type AchievementStatus struct {
	domain.Achievement
	Unlocked bool `json:"unlocked"`
}

// Achievements lists the catalog with the unlocked flags of the profile.
func (a *App) Achievements() []AchievementStatus {
	p, _ := a.sessions.Profile()
	return lo.Map(domain.Achievements(), func(ach domain.Achievement, _ int) AchievementStatus {
		return AchievementStatus{Achievement: ach, Unlocked: p.HasAchievement(ach.ID)}
	})
}

func (a *App) publish(t events.Type, sessionID string, data any) {
	a.events.Publish(events.Event{Type: t, SessionID: sessionID, Data: data, Time: a.now()})
}
