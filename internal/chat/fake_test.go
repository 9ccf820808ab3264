package chat

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/friendchat/internal/ai"
	"github.com/ashureev/friendchat/internal/domain"
	"github.com/ashureev/friendchat/internal/events"
	"github.com/ashureev/friendchat/internal/i18n"
	"github.com/ashureev/friendchat/internal/sessions"
	"github.com/ashureev/friendchat/internal/store"
)

type fakeAI struct {
	mu         sync.Mutex
	chat       func(ctx context.Context, req ai.ChatRequest) (*ai.ChatReply, error)
	chunks     []ai.ChatChunk
	image      *ai.GeneratedImage
	imageErr   error
	trivia     domain.Trivia
	triviaErr  error
	refined    string
	followUps  []string
	followGate chan struct{}
	title      string
	memory     string

	chatCalls    atomic.Int32
	followCalls  atomic.Int32
	imagePrompts []string
	requests     []ai.ChatRequest
}

var _ ai.Client = (*fakeAI)(nil)

func (f *fakeAI) record(req ai.ChatRequest) {
	f.chatCalls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
}

func (f *fakeAI) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatReply, error) {
	f.record(req)
	if f.chat != nil {
		return f.chat(ctx, req)
	}
	return &ai.ChatReply{Text: "أهلاً بيك يا صديقي، يسعدني جدًا الكلام معاك"}, nil
}

func (f *fakeAI) ChatStream(_ context.Context, req ai.ChatRequest) iter.Seq2[*ai.ChatChunk, error] {
	f.record(req)
	return func(yield func(*ai.ChatChunk, error) bool) {
		for i := range f.chunks {
			if !yield(&f.chunks[i], nil) {
				return
			}
		}
	}
}

func (f *fakeAI) GenerateImage(_ context.Context, prompt string) (*ai.GeneratedImage, error) {
	f.mu.Lock()
	f.imagePrompts = append(f.imagePrompts, prompt)
	f.mu.Unlock()
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	if f.image != nil {
		return f.image, nil
	}
	return &ai.GeneratedImage{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}, nil
}

func (f *fakeAI) RefineImagePrompt(_ context.Context, original, modification string) (string, error) {
	if f.refined != "" {
		return f.refined, nil
	}
	return original + ", " + modification, nil
}

func (f *fakeAI) Trivia(context.Context) (domain.Trivia, error) {
	return f.trivia, f.triviaErr
}

func (f *fakeAI) DailyMission(context.Context) (domain.DailyMission, error) {
	return domain.DailyMission{Text: "قل لي نكتة", Keyword: "joke"}, nil
}

func (f *fakeAI) Title(context.Context, string) (string, error) {
	return f.title, nil
}

func (f *fakeAI) ExtractMemory(context.Context, string) (string, error) {
	return f.memory, nil
}

func (f *fakeAI) FollowUps(ctx context.Context, _ ai.FollowUpRequest) ([]string, error) {
	f.followCalls.Add(1)
	if f.followGate != nil {
		select {
		case <-f.followGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.followUps, nil
}

func (f *fakeAI) Stats() ai.Stats { return ai.Stats{} }

func (f *fakeAI) Close() {}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	ctrl   *Controller
	repo   *sessions.Repository
	ai     *fakeAI
	msgs   *i18n.Catalog
	events *recorder
}

const testSession = "convo-test"

func newHarness(t *testing.T, fake *fakeAI, mutate ...func(*Config)) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	repo, err := sessions.Open(ctx, st, logger)
	require.NoError(t, err)

	msgs, err := i18n.New("ar")
	require.NoError(t, err)

	today := domain.DateOf(time.Now(), time.UTC)
	_, err = repo.Create(ctx, &domain.Session{
		ID:        testSession,
		Title:     msgs.T(i18n.TitleNewChat, nil),
		AutoTitle: true,
		Messages: []domain.Message{{
			ID:        domain.GreetingMessageID,
			Sender:    domain.SenderAI,
			Text:      "إزيك يا سارة!",
			Timestamp: time.Now(),
		}},
		Profile: domain.Profile{
			UserName:            "Sara",
			AIName:              "Karim",
			LastInteractionDate: today,
			DailyMission:        domain.DailyMission{Completed: true},
		},
	})
	require.NoError(t, err)

	cfg := Config{
		Location:            time.UTC,
		TriviaFollowUpDelay: 10 * time.Millisecond,
		BackgroundTimeout:   5 * time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	rec := &recorder{}
	ctrl := New(repo, fake, msgs, cfg, WithLogger(logger), WithPublisher(rec))
	t.Cleanup(ctrl.Close)

	return &harness{ctrl: ctrl, repo: repo, ai: fake, msgs: msgs, events: rec}
}

func (h *harness) session(t *testing.T) *domain.Session {
	t.Helper()
	s, err := h.repo.Get(testSession)
	require.NoError(t, err)
	return s
}

func (h *harness) profile(t *testing.T) domain.Profile {
	t.Helper()
	p, ok := h.repo.Profile()
	require.True(t, ok)
	return p
}
