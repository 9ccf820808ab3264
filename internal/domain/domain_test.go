package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMemoryDeduplicates(t *testing.T) {
	var p Profile
	assert.True(t, p.AddMemory("likes football"))
	assert.False(t, p.AddMemory("likes football"))
	assert.False(t, p.AddMemory(""))
	assert.True(t, p.AddMemory("Likes football"))
	assert.Equal(t, []string{"likes football", "Likes football"}, p.Memory)
}

func TestUnlockIsUnique(t *testing.T) {
	var p Profile
	assert.True(t, p.Unlock(AchievementFirstMission))
	assert.False(t, p.Unlock(AchievementFirstMission))
	assert.True(t, p.HasAchievement(AchievementFirstMission))
	assert.Len(t, p.UnlockedAchievements, 1)
}

func TestProfileCloneIsDeep(t *testing.T) {
	p := Profile{Memory: []string{"a"}, UnlockedAchievements: []AchievementID{AchievementMemoryMaker}}
	c := p.Clone()
	c.Memory[0] = "b"
	c.UnlockedAchievements[0] = AchievementChattyUser
	assert.Equal(t, "a", p.Memory[0])
	assert.Equal(t, AchievementMemoryMaker, p.UnlockedAchievements[0])
	assert.True(t, p.Equal(p.Clone()))
	assert.False(t, p.Equal(c))
}

func TestProfileEqual(t *testing.T) {
	base := Profile{
		UserName:     "Sara",
		AIName:       "Karim",
		Memory:       []string{"likes tea"},
		DailyMission: DailyMission{Text: "tell a joke", Keyword: "joke"},
	}
	assert.True(t, base.Equal(base.Clone()))

	streak := base.Clone()
	streak.DailyStreak = 2
	assert.False(t, base.Equal(streak))

	mission := base.Clone()
	mission.DailyMission.Completed = true
	assert.False(t, base.Equal(mission))

	memory := base.Clone()
	memory.Memory = append(memory.Memory, "plays chess")
	assert.False(t, base.Equal(memory))

	unlocked := base.Clone()
	unlocked.Unlock(AchievementFirstOnboarding)
	assert.False(t, base.Equal(unlocked))
}

func TestPersistable(t *testing.T) {
	tests := []struct {
		name     string
		msg      Message
		wantImg  bool
		wantData bool
	}{
		{
			name: "user upload loses bytes and preview",
			msg:  Message{Sender: SenderUser, Image: &Image{Data: []byte{1}, PreviewURL: "blob:x"}},
		},
		{
			name:     "generated image keeps bytes",
			msg:      Message{Sender: SenderAI, Image: &Image{Data: []byte{1}, MIMEType: "image/jpeg", PreviewURL: "blob:x"}},
			wantImg:  true,
			wantData: true,
		},
		{
			name:    "external url is kept",
			msg:     Message{Sender: SenderAI, Image: &Image{URL: "https://example.com/cat.png"}},
			wantImg: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hadPreview := tt.msg.Image != nil && tt.msg.Image.PreviewURL != ""
			got := tt.msg.Persistable()
			if !tt.wantImg {
				assert.Nil(t, got.Image)
				return
			}
			require.NotNil(t, got.Image)
			assert.Empty(t, got.Image.PreviewURL)
			assert.Equal(t, tt.wantData, len(got.Image.Data) > 0)
			if hadPreview {
				assert.NotEmpty(t, tt.msg.Image.PreviewURL, "original is not mutated")
			}
		})
	}
}

func TestYesterday(t *testing.T) {
	assert.Equal(t, "2024-01-01", Yesterday("2024-01-02"))
	assert.Equal(t, "2024-02-29", Yesterday("2024-03-01"))
	assert.Equal(t, "2023-12-31", Yesterday("2024-01-01"))
	assert.Empty(t, Yesterday(""))
}

func TestIDs(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.True(t, strings.HasPrefix(a, "convo-"))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(NewMessageID("ai"), "ai-"))
}

func TestAchievementCatalog(t *testing.T) {
	all := Achievements()
	assert.Len(t, all, 7)
	a, ok := LookupAchievement(AchievementChattyUser)
	require.True(t, ok)
	assert.NotEmpty(t, a.Title)
	_, ok = LookupAchievement("UNKNOWN")
	assert.False(t, ok)
}
