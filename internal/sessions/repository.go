// Package sessions keeps the authoritative in-memory list of conversations
// and mirrors every mutation to the persisted store.
package sessions

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/containerd/errdefs"

	"github.com/ashureev/friendchat/internal/domain"
	"github.com/ashureev/friendchat/internal/store"
)

// Repository is the in-memory session list backed by a store.Repository.
// Writes are mirrored to the store while the lock is held so the store sees
// them in order. Store failures are logged and swallowed: the in-memory copy
// stays authoritative for the lifetime of the process.
type Repository struct {
	store  store.Repository
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*domain.Session
	profile  *domain.Profile
	stored   *domain.Profile
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the clock used for LastUpdated stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// Open loads every session and the flat profile record from st.
func Open(ctx context.Context, st store.Repository, logger *slog.Logger, opts ...Option) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{
		store:    st,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*domain.Session),
	}
	for _, opt := range opts {
		opt(r)
	}

	list, err := st.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, s := range list {
		r.sessions[s.ID] = s
	}

	stored, err := st.GetProfile(ctx)
	if err != nil {
		logger.Warn("failed to read stored profile", "error", err)
	}
	r.stored = stored

	// The most recently updated session carries the canonical profile.
	if latest := r.latestLocked(); latest != nil {
		p := latest.Profile.Clone()
		r.profile = &p
	}

	return r, nil
}

func (r *Repository) sortedLocked() []*domain.Session {
	list := make([]*domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	slices.SortFunc(list, func(a, b *domain.Session) int {
		if c := b.LastUpdated.Compare(a.LastUpdated); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return list
}

func (r *Repository) latestLocked() *domain.Session {
	list := r.sortedLocked()
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// List returns copies of every session, most recently updated first.
func (r *Repository) List() []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.sortedLocked()
	out := make([]*domain.Session, len(list))
	for i, s := range list {
		out[i] = s.Clone()
	}
	return out
}

// Summaries returns the list view of every session, most recently updated first.
func (r *Repository) Summaries() []domain.SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.sortedLocked()
	out := make([]domain.SessionSummary, len(list))
	for i, s := range list {
		out[i] = s.Summary()
	}
	return out
}

// Latest returns a copy of the most recently updated session, or nil.
func (r *Repository) Latest() *domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestLocked().Clone()
}

// Len returns the number of sessions.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Get returns a copy of the session with the given id.
func (r *Repository) Get(id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, errdefs.ErrNotFound)
	}
	return s.Clone(), nil
}

// Save upserts a session. When a canonical profile exists the session adopts
// it; otherwise the session's profile becomes canonical.
func (r *Repository) Save(ctx context.Context, session *domain.Session) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(ctx, session)
}

func (r *Repository) saveLocked(ctx context.Context, session *domain.Session) *domain.Session {
	s := session.Clone()
	if s.LastUpdated.IsZero() {
		s.LastUpdated = r.now()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.LastUpdated
	}
	if s.Messages == nil {
		s.Messages = []domain.Message{}
	}
	if r.profile != nil {
		s.Profile = r.profile.Clone()
	} else {
		p := s.Profile.Clone()
		r.profile = &p
		r.persist(ctx, "save profile", func() error { return r.store.SaveProfile(ctx, &p) })
	}
	r.sessions[s.ID] = s
	r.persist(ctx, "save session", func() error { return r.store.UpsertSession(ctx, s) })
	return s.Clone()
}

// Create stores a new session.
func (r *Repository) Create(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return nil, fmt.Errorf("session %q: %w", session.ID, errdefs.ErrAlreadyExists)
	}
	return r.saveLocked(ctx, session), nil
}

// Update applies fn to the session under the repository lock, stamps
// LastUpdated and persists the result. Profile edits made by fn are
// discarded; use UpdateProfile for those.
func (r *Repository) Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, errdefs.ErrNotFound)
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.CreatedAt = current.CreatedAt
	if r.profile != nil {
		working.Profile = r.profile.Clone()
	}
	working.LastUpdated = r.now()
	r.sessions[id] = working

	r.persist(ctx, "update session", func() error { return r.store.UpsertSession(ctx, working) })
	return working.Clone(), nil
}

// UpdateProfile is the only writer of the profile. It applies fn to the
// canonical profile, copies the result into every session and writes all
// sessions in one store transaction, followed by the flat profile record.
func (r *Repository) UpdateProfile(ctx context.Context, fn func(*domain.Profile) error) (domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.profile == nil || len(r.sessions) == 0 {
		return domain.Profile{}, fmt.Errorf("no profile: %w", errdefs.ErrFailedPrecondition)
	}

	working := r.profile.Clone()
	if err := fn(&working); err != nil {
		return domain.Profile{}, err
	}
	if working.Equal(*r.profile) {
		return working, nil
	}

	r.profile = &working
	batch := make([]*domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.Profile = working.Clone()
		batch = append(batch, s)
	}

	r.persist(ctx, "fan out profile", func() error { return r.store.UpsertSessions(ctx, batch) })
	r.persist(ctx, "save profile", func() error { return r.store.SaveProfile(ctx, &working) })
	return working.Clone(), nil
}

// Delete removes a session. Deleting the last session keeps the canonical
// profile available as the stored profile for the next setup.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("session %q: %w", id, errdefs.ErrNotFound)
	}
	delete(r.sessions, id)
	if len(r.sessions) == 0 && r.profile != nil {
		r.stored = r.profile
		r.profile = nil
	}

	r.persist(ctx, "delete session", func() error { return r.store.DeleteSession(ctx, id) })
	return nil
}

// Clear removes every session in one store call. Like deleting the last
// session, it keeps the profile as the stored profile. It returns the number
// of sessions removed from memory.
func (r *Repository) Clear(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.sessions)
	if n == 0 {
		return 0, nil
	}
	clear(r.sessions)
	if r.profile != nil {
		r.stored = r.profile
		r.profile = nil
	}

	r.persist(ctx, "clear sessions", func() error {
		deleted, err := r.store.DeleteAllSessions(ctx)
		if err == nil && deleted != int64(n) {
			r.logger.WarnContext(ctx, "store session count differs", "memory", n, "store", deleted)
		}
		return err
	})
	return n, nil
}

// Profile returns the canonical profile and whether one exists.
func (r *Repository) Profile() (domain.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.profile == nil {
		return domain.Profile{}, false
	}
	return r.profile.Clone(), true
}

// StoredProfile returns the flat profile record read at startup, used to
// prefill setup when no sessions exist.
func (r *Repository) StoredProfile() (domain.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stored == nil {
		return domain.Profile{}, false
	}
	return r.stored.Clone(), true
}

func (r *Repository) persist(ctx context.Context, op string, fn func() error) {
	if err := fn(); err != nil {
		r.logger.WarnContext(ctx, "session store write failed", "op", op, "error", err)
	}
}
