package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/friendchat/internal/domain"
	"github.com/ashureev/friendchat/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	profile  *domain.Profile
	failing  bool
	batches  int
}

var _ store.Repository = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*domain.Session)}
}

func (f *fakeStore) fail() error {
	if f.failing {
		return errors.New("disk full")
	}
	return nil
}

func (f *fakeStore) ListSessions(_ context.Context) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Session
	for _, s := range f.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (f *fakeStore) UpsertSession(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.sessions[s.ID] = s.Clone()
	return nil
}

func (f *fakeStore) UpsertSessions(_ context.Context, list []*domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	f.batches++
	for _, s := range list {
		f.sessions[s.ID] = s.Clone()
	}
	return nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) DeleteAllSessions(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.sessions))
	f.sessions = make(map[string]*domain.Session)
	return n, nil
}

func (f *fakeStore) GetProfile(_ context.Context) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profile == nil {
		return nil, nil
	}
	p := f.profile.Clone()
	return &p, nil
}

func (f *fakeStore) SaveProfile(_ context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return err
	}
	c := p.Clone()
	f.profile = &c
	return nil
}

func (f *fakeStore) Ping(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                 { return nil }

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func openRepo(t *testing.T, st *fakeStore) *Repository {
	t.Helper()
	clock := &tickClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	repo, err := Open(context.Background(), st, nil, WithClock(clock.Now))
	require.NoError(t, err)
	return repo
}

func newSession(id string) *domain.Session {
	return &domain.Session{
		ID:      id,
		Title:   "chat",
		Profile: domain.Profile{UserName: "Sara", AIName: "Karim"},
		Messages: []domain.Message{
			{ID: domain.GreetingMessageID, Sender: domain.SenderAI, Text: "hello"},
		},
	}
}

func TestSaveThenReopen(t *testing.T) {
	st := newFakeStore()
	repo := openRepo(t, st)
	ctx := context.Background()

	saved := repo.Save(ctx, newSession("convo-1"))
	assert.False(t, saved.LastUpdated.IsZero())

	reopened := openRepo(t, st)
	got, err := reopened.Get("convo-1")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, saved.Title, got.Title)
	assert.Equal(t, saved.Messages, got.Messages)

	p, ok := reopened.Profile()
	require.True(t, ok)
	assert.Equal(t, "Sara", p.UserName)
	stored, ok := reopened.StoredProfile()
	require.True(t, ok)
	assert.Equal(t, "Karim", stored.AIName)
}

func TestListOrderedByLastUpdated(t *testing.T) {
	repo := openRepo(t, newFakeStore())
	ctx := context.Background()

	repo.Save(ctx, newSession("convo-a"))
	repo.Save(ctx, newSession("convo-b"))
	repo.Save(ctx, newSession("convo-c"))
	_, err := repo.Update(ctx, "convo-a", func(s *domain.Session) error {
		s.Title = "touched"
		return nil
	})
	require.NoError(t, err)

	var ids []string
	for _, s := range repo.List() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"convo-a", "convo-c", "convo-b"}, ids)
	assert.Equal(t, "convo-a", repo.Latest().ID)
}

func TestUpdateProfileFansOut(t *testing.T) {
	st := newFakeStore()
	repo := openRepo(t, st)
	ctx := context.Background()

	for _, id := range []string{"convo-1", "convo-2", "convo-3"} {
		repo.Save(ctx, newSession(id))
	}

	saved, err := repo.UpdateProfile(ctx, func(p *domain.Profile) error {
		p.AIName = "Nour"
		p.ChatBackground = "sunset"
		p.AddMemory("has a cat")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, st.batches)

	for _, s := range repo.List() {
		assert.True(t, s.Profile.Equal(saved), "session %s profile diverged", s.ID)
	}
	for _, s := range st.sessions {
		assert.True(t, s.Profile.Equal(saved), "stored session %s profile diverged", s.ID)
	}
	require.NotNil(t, st.profile)
	assert.True(t, st.profile.Equal(saved))
}

func TestUpdateDiscardsProfileEdits(t *testing.T) {
	repo := openRepo(t, newFakeStore())
	ctx := context.Background()
	repo.Save(ctx, newSession("convo-1"))

	got, err := repo.Update(ctx, "convo-1", func(s *domain.Session) error {
		s.Profile.UserName = "Mallory"
		s.Messages = append(s.Messages, domain.Message{ID: "user-1", Sender: domain.SenderUser, Text: "hi"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Sara", got.Profile.UserName)
	assert.Len(t, got.Messages, 2)
}

func TestUpdateProfileWithoutSessions(t *testing.T) {
	repo := openRepo(t, newFakeStore())
	_, err := repo.UpdateProfile(context.Background(), func(*domain.Profile) error { return nil })
	assert.True(t, errdefs.IsFailedPrecondition(err))
}

func TestNewSessionAdoptsCanonicalProfile(t *testing.T) {
	repo := openRepo(t, newFakeStore())
	ctx := context.Background()
	repo.Save(ctx, newSession("convo-1"))
	_, err := repo.UpdateProfile(ctx, func(p *domain.Profile) error {
		p.DailyStreak = 7
		return nil
	})
	require.NoError(t, err)

	s := newSession("convo-2")
	s.Profile = domain.Profile{UserName: "stale"}
	created, err := repo.Create(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 7, created.Profile.DailyStreak)
	assert.Equal(t, "Sara", created.Profile.UserName)

	_, err = repo.Create(ctx, s)
	assert.True(t, errdefs.IsAlreadyExists(err))
}

func TestStoreFailuresAreSwallowed(t *testing.T) {
	st := newFakeStore()
	repo := openRepo(t, st)
	ctx := context.Background()
	repo.Save(ctx, newSession("convo-1"))

	st.failing = true
	_, err := repo.Update(ctx, "convo-1", func(s *domain.Session) error {
		s.Title = "still works"
		return nil
	})
	require.NoError(t, err)
	_, err = repo.UpdateProfile(ctx, func(p *domain.Profile) error {
		p.DailyStreak = 2
		return nil
	})
	require.NoError(t, err)

	got, err := repo.Get("convo-1")
	require.NoError(t, err)
	assert.Equal(t, "still works", got.Title)
	assert.Equal(t, 2, got.Profile.DailyStreak)
	assert.Equal(t, "chat", st.sessions["convo-1"].Title)
}

func TestDeleteLastSessionClearsProfile(t *testing.T) {
	repo := openRepo(t, newFakeStore())
	ctx := context.Background()
	repo.Save(ctx, newSession("convo-1"))

	require.NoError(t, repo.Delete(ctx, "convo-1"))
	assert.Zero(t, repo.Len())
	_, ok := repo.Profile()
	assert.False(t, ok)
	stored, ok := repo.StoredProfile()
	require.True(t, ok)
	assert.Equal(t, "Sara", stored.UserName)

	assert.True(t, errdefs.IsNotFound(repo.Delete(ctx, "convo-1")))
	_, err := repo.Get("convo-1")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestGetReturnsCopies(t *testing.T) {
	repo := openRepo(t, newFakeStore())
	repo.Save(context.Background(), newSession("convo-1"))

	got, err := repo.Get("convo-1")
	require.NoError(t, err)
	got.Messages[0].Text = "mutated"

	again, err := repo.Get("convo-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Text)
}
