// Package domain contains core domain types for the companion chat service.
package domain

import (
	"slices"

	"github.com/samber/lo"
)

// Gender selects the grammatical voice the companion speaks with.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Mood is the user's self-reported mood for the current day.
type Mood string

const (
	MoodNone    Mood = ""
	MoodHappy   Mood = "happy"
	MoodOkay    Mood = "okay"
	MoodSad     Mood = "sad"
	MoodExcited Mood = "excited"
	MoodTired   Mood = "tired"
)

// Valid reports whether m is one of the known moods (or empty).
func (m Mood) Valid() bool {
	switch m {
	case MoodNone, MoodHappy, MoodOkay, MoodSad, MoodExcited, MoodTired:
		return true
	}
	return false
}

// DefaultChatBackground is applied when a profile has no background set.
const DefaultChatBackground = "neon_nexus"

// DailyMission is the rotating action suggested to the user each day.
type DailyMission struct {
	Text      string `json:"text"`
	Keyword   string `json:"keyword"`
	Completed bool   `json:"completed"`
}

// Profile holds user/companion naming, appearance, memory, streak and mission
// state. Every session carries a copy; the copies are kept identical.
type Profile struct {
	UserName             string          `json:"userName"`
	AIName               string          `json:"aiName"`
	AIGender             Gender          `json:"aiGender,omitempty"`
	UserAvatar           string          `json:"userAvatar,omitempty"`
	AIAvatar             string          `json:"aiAvatar,omitempty"`
	ChatBackground       string          `json:"chatBackground,omitempty"`
	Memory               []string        `json:"memory"`
	NotificationsEnabled bool            `json:"notificationsEnabled"`
	DailyStreak          int             `json:"dailyStreak"`
	LastInteractionDate  string          `json:"lastInteractionDate"`
	LastReconciledDate   string          `json:"lastReconciledDate,omitempty"`
	DailyMission         DailyMission    `json:"dailyMission"`
	Mood                 Mood            `json:"mood,omitempty"`
	UnlockedAchievements []AchievementID `json:"unlockedAchievements"`
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	p.Memory = slices.Clone(p.Memory)
	p.UnlockedAchievements = slices.Clone(p.UnlockedAchievements)
	return p
}

// Equal reports whether two profiles hold the same values.
func (p Profile) Equal(o Profile) bool {
	return p.UserName == o.UserName &&
		p.AIName == o.AIName &&
		p.AIGender == o.AIGender &&
		p.UserAvatar == o.UserAvatar &&
		p.AIAvatar == o.AIAvatar &&
		p.ChatBackground == o.ChatBackground &&
		p.NotificationsEnabled == o.NotificationsEnabled &&
		p.DailyStreak == o.DailyStreak &&
		p.LastInteractionDate == o.LastInteractionDate &&
		p.LastReconciledDate == o.LastReconciledDate &&
		p.DailyMission == o.DailyMission &&
		p.Mood == o.Mood &&
		slices.Equal(p.Memory, o.Memory) &&
		slices.Equal(p.UnlockedAchievements, o.UnlockedAchievements)
}

// AddMemory appends fact unless an identical entry already exists.
// Returns true when the memory list changed.
func (p *Profile) AddMemory(fact string) bool {
	if fact == "" || lo.Contains(p.Memory, fact) {
		return false
	}
	p.Memory = append(p.Memory, fact)
	return true
}

// Unlock records an achievement. Returns true if it was not unlocked before.
func (p *Profile) Unlock(id AchievementID) bool {
	if p.HasAchievement(id) {
		return false
	}
	p.UnlockedAchievements = append(p.UnlockedAchievements, id)
	return true
}

// HasAchievement reports whether id is unlocked.
func (p *Profile) HasAchievement(id AchievementID) bool {
	return lo.Contains(p.UnlockedAchievements, id)
}

// AvatarURLs derives avatar image URLs from the configured names.
func AvatarURLs(userName, aiName string) (userAvatar, aiAvatar string) {
	return "https://api.dicebear.com/8.x/adventurer/svg?seed=" + userName,
		"https://api.dicebear.com/8.x/micah/svg?seed=" + aiName
}
