// Package daily rolls the streak counter and the daily mission over when the
// calendar day changes.
package daily

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"golang.org/x/sync/singleflight"

	"github.com/ashureev/friendchat/internal/domain"
)

// MissionSource produces a fresh daily mission.
type MissionSource interface {
	DailyMission(ctx context.Context) (domain.DailyMission, error)
}

// ProfileStore is the profile view of the session repository.
type ProfileStore interface {
	Profile() (domain.Profile, bool)
	UpdateProfile(ctx context.Context, fn func(*domain.Profile) error) (domain.Profile, error)
}

// Result describes what a reconcile run did.
type Result struct {
	Today        string                 `json:"today"`
	Changed      bool                   `json:"changed"`
	Streak       int                    `json:"streak"`
	Mission      domain.DailyMission    `json:"mission"`
	FallbackUsed bool                   `json:"fallbackUsed"`
	Unlocked     []domain.AchievementID `json:"unlocked,omitempty"`
	Profile      domain.Profile         `json:"profile"`
}

// Reconciler applies the once-per-day rollover to the canonical profile.
type Reconciler struct {
	profiles ProfileStore
	missions MissionSource
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
	timeout  time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	group singleflight.Group
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the reconciler clock.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithRand sets the source used to pick fallback missions.
func WithRand(rng *rand.Rand) Option {
	return func(r *Reconciler) { r.rng = rng }
}

// WithMissionTimeout bounds the mission request.
func WithMissionTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(profiles ProfileStore, missions MissionSource, opts ...Option) *Reconciler {
	r := &Reconciler{
		profiles: profiles,
		missions: missions,
		logger:   slog.Default(),
		now:      time.Now,
		loc:      time.Local,
		timeout:  30 * time.Second,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Today returns the current calendar date in the reconciler's location.
func (r *Reconciler) Today() string {
	return domain.DateOf(r.now(), r.loc)
}

// Reconcile rolls the streak and mission over if the day changed since the
// last interaction. Concurrent calls share one run.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	v, err, _ := r.group.Do("reconcile", func() (any, error) {
		return r.reconcile(ctx)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (r *Reconciler) reconcile(ctx context.Context) (Result, error) {
	today := r.Today()
	res := Result{Today: today}

	current, ok := r.profiles.Profile()
	if !ok {
		return res, nil
	}
	res.Profile = current
	res.Streak = current.DailyStreak
	res.Mission = current.DailyMission
	if !needsRollover(current, today) {
		return res, nil
	}

	// The mission request runs before taking the profile lock.
	mission, fallback := r.nextMission(ctx)

	updated, err := r.profiles.UpdateProfile(ctx, func(p *domain.Profile) error {
		if !needsRollover(*p, today) {
			return errAlreadyRolled
		}
		if p.LastInteractionDate == domain.Yesterday(today) {
			p.DailyStreak++
		} else {
			p.DailyStreak = 1
		}
		p.DailyMission = mission
		p.Mood = domain.MoodNone
		p.LastReconciledDate = today
		if p.ChatBackground == "" {
			p.ChatBackground = domain.DefaultChatBackground
		}
		if p.DailyStreak >= 3 && p.Unlock(domain.AchievementStreak3Days) {
			res.Unlocked = append(res.Unlocked, domain.AchievementStreak3Days)
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyRolled):
		res.Unlocked = nil
		if p, ok := r.profiles.Profile(); ok {
			res.Profile, res.Streak, res.Mission = p, p.DailyStreak, p.DailyMission
		}
		return res, nil
	case errdefs.IsFailedPrecondition(err):
		return res, nil
	case err != nil:
		return res, fmt.Errorf("apply daily rollover: %w", err)
	}

	res.Changed = true
	res.Profile = updated
	res.Streak = updated.DailyStreak
	res.Mission = updated.DailyMission
	res.FallbackUsed = fallback
	r.logger.Info("daily state rolled over",
		"today", today,
		"streak", updated.DailyStreak,
		"mission_keyword", updated.DailyMission.Keyword,
		"fallback", fallback)
	return res, nil
}

var errAlreadyRolled = errors.New("day already reconciled")

func needsRollover(p domain.Profile, today string) bool {
	return p.LastInteractionDate != today && p.LastReconciledDate != today
}

func (r *Reconciler) nextMission(ctx context.Context) (domain.DailyMission, bool) {
	if r.missions != nil {
		mctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		m, err := r.missions.DailyMission(mctx)
		if err == nil && strings.TrimSpace(m.Text) != "" && strings.TrimSpace(m.Keyword) != "" {
			return domain.DailyMission{
				Text:    strings.TrimSpace(m.Text),
				Keyword: strings.ToLower(strings.TrimSpace(m.Keyword)),
			}, false
		}
		if err == nil {
			err = errors.New("empty mission")
		}
		r.logger.Warn("failed to fetch daily mission, using fallback", "error", err)
	}

	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return pickFallback(r.rng), true
}
