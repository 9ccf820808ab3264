package daily

import (
	"math/rand/v2"

	"github.com/ashureev/friendchat/internal/domain"
)

var fallbackMissions = []domain.DailyMission{
	{Text: "اسألني عن الطقس اليوم", Keyword: "weather"},
	{Text: "اطلب مني أن أصف لك صورة لقطة", Keyword: "cat"},
	{Text: "قل لي نكتة", Keyword: "joke"},
	{Text: "ما هو اقتباس اليوم الملهم؟", Keyword: "quote"},
	{Text: "اطلب مني كتابة قصيدة قصيرة عن الصداقة", Keyword: "poem"},
}

// FallbackMissions returns the static missions used when the AI is unavailable.
func FallbackMissions() []domain.DailyMission {
	out := make([]domain.DailyMission, len(fallbackMissions))
	copy(out, fallbackMissions)
	return out
}

func pickFallback(rng *rand.Rand) domain.DailyMission {
	return fallbackMissions[rng.IntN(len(fallbackMissions))]
}
