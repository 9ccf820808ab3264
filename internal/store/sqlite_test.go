package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/friendchat/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "friend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSession(id string, updated time.Time) *domain.Session {
	return &domain.Session{
		ID:        id,
		Title:     "محادثة مع كريم",
		AutoTitle: true,
		Messages: []domain.Message{
			{ID: domain.GreetingMessageID, Sender: domain.SenderAI, Text: "أهلاً", Timestamp: updated},
		},
		Profile:     domain.Profile{UserName: "Sara", AIName: "Karim", Memory: []string{"likes tea"}},
		CreatedAt:   updated,
		LastUpdated: updated,
	}
}

// findSession looks a session up through ListSessions. It returns nil when
// the id is not stored.
func findSession(t *testing.T, s *SQLiteStore, id string) *domain.Session {
	t.Helper()
	list, err := s.ListSessions(context.Background())
	require.NoError(t, err)
	for _, session := range list {
		if session.ID == id {
			return session
		}
	}
	return nil
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	now := time.UnixMilli(time.Now().UnixMilli())
	session := testSession("convo-1", now)
	session.Messages = append(session.Messages,
		domain.Message{
			ID: "user-1", Sender: domain.SenderUser, Text: "look", Timestamp: now,
			Image: &domain.Image{Data: []byte{1, 2, 3}, MIMEType: "image/png", PreviewURL: "blob:abc"},
		},
		domain.Message{
			ID: "ai-1", Sender: domain.SenderAI, Type: domain.MessageGeneratedImage, Timestamp: now,
			Image: &domain.Image{Data: []byte{9, 9}, MIMEType: "image/jpeg", PreviewURL: "blob:def"},
		},
	)
	require.NoError(t, s.UpsertSession(ctx, session))

	got := findSession(t, s, "convo-1")
	require.NotNil(t, got)

	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.Title, got.Title)
	assert.True(t, got.AutoTitle)
	assert.Equal(t, session.Profile, got.Profile)
	assert.True(t, now.Equal(got.LastUpdated))
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "أهلاً", got.Messages[0].Text)

	// User upload bytes and previews are not durable.
	assert.Nil(t, got.Messages[1].Image, "user image with only transient data should be dropped")
	require.NotNil(t, got.Messages[2].Image)
	assert.Equal(t, []byte{9, 9}, got.Messages[2].Image.Data)
	assert.Empty(t, got.Messages[2].Image.PreviewURL)
}

func TestListSessionsOrderedByUpdate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, s.UpsertSessions(ctx, []*domain.Session{
		testSession("convo-a", base),
		testSession("convo-b", base.Add(2*time.Minute)),
		testSession("convo-c", base.Add(time.Minute)),
	}))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "convo-b", list[0].ID)
	assert.Equal(t, "convo-c", list[1].ID)
	assert.Equal(t, "convo-a", list[2].ID)
}

func TestUpsertRewritesSession(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	now := time.UnixMilli(1_700_000_000_000)
	session := testSession("convo-1", now)
	require.NoError(t, s.UpsertSession(ctx, session))

	session.Title = "new title"
	session.AutoTitle = false
	session.Messages = append(session.Messages, domain.Message{ID: "user-1", Sender: domain.SenderUser, Text: "hi"})
	session.LastUpdated = now.Add(time.Second)
	require.NoError(t, s.UpsertSession(ctx, session))

	got := findSession(t, s, "convo-1")
	require.NotNil(t, got)
	assert.Equal(t, "new title", got.Title)
	assert.False(t, got.AutoTitle)
	assert.Len(t, got.Messages, 2)
	assert.True(t, now.Equal(got.CreatedAt), "created_at is preserved")
}

func TestDeleteSessions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.UpsertSessions(ctx, []*domain.Session{
		testSession("convo-1", now), testSession("convo-2", now), testSession("convo-3", now),
	}))

	require.NoError(t, s.DeleteSession(ctx, "convo-2"))
	assert.Nil(t, findSession(t, s, "convo-2"))

	n, err := s.DeleteAllSessions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestProfileRecord(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	profile := &domain.Profile{
		UserName:     "Sara",
		AIName:       "Karim",
		DailyStreak:  4,
		DailyMission: domain.DailyMission{Text: "قل لي نكتة", Keyword: "joke"},
		UnlockedAchievements: []domain.AchievementID{
			domain.AchievementFirstOnboarding,
		},
	}
	require.NoError(t, s.SaveProfile(ctx, profile))
	profile.DailyStreak = 5
	require.NoError(t, s.SaveProfile(ctx, profile))

	got, err = s.GetProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.DailyStreak)
	assert.Equal(t, profile.DailyMission, got.DailyMission)
	assert.Equal(t, profile.UnlockedAchievements, got.UnlockedAchievements)
}

func TestIsBusyError(t *testing.T) {
	t.Parallel()
	assert.False(t, IsBusyError(nil))
	assert.True(t, IsBusyError(errors.New("SQLITE_BUSY: locked")))
	assert.True(t, IsBusyError(errors.New("database is locked (5)")))
	assert.False(t, IsBusyError(errors.New("no such table")))
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()
	calls := 0
	err := withRetry(context.Background(), "op", func() error {
		calls++
		return errors.New("constraint failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesBusy(t *testing.T) {
	t.Parallel()
	calls := 0
	err := withRetry(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
