package domain

// AchievementID identifies an entry of the static achievement catalog.
type AchievementID string

const (
	AchievementFirstOnboarding AchievementID = "FIRST_ONBOARDING"
	AchievementFirstMission    AchievementID = "FIRST_MISSION"
	AchievementStreak3Days     AchievementID = "STREAK_3_DAYS"
	AchievementImageCreator    AchievementID = "IMAGE_CREATOR"
	AchievementMemoryMaker     AchievementID = "MEMORY_MAKER"
	AchievementTriviaMaster    AchievementID = "TRIVIA_MASTER"
	AchievementChattyUser      AchievementID = "CHATTY_USER"
)

// ChattyUserThreshold is the number of user messages in one session that
// unlocks AchievementChattyUser.
const ChattyUserThreshold = 50

// Achievement is a static catalog entry.
type Achievement struct {
	ID          AchievementID `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
}

var catalog = []Achievement{
	{ID: AchievementFirstOnboarding, Title: "رفيق جديد", Description: "أكملت الإعداد الأولي وأنشأت رفيقك الأول."},
	{ID: AchievementFirstMission, Title: "مبادر", Description: "أكملت أول مهمة يومية بنجاح."},
	{ID: AchievementStreak3Days, Title: "شعلة لا تنطفئ", Description: "حافظت على سلسلة حماس لمدة 3 أيام متتالية."},
	{ID: AchievementImageCreator, Title: "فنان مبدع", Description: "أنشأت أول صورة لك باستخدام الذكاء الاصطناعي."},
	{ID: AchievementMemoryMaker, Title: "صانع الذكريات", Description: "حفظت أول ذكرى مهمة لرفيقك."},
	{ID: AchievementTriviaMaster, Title: "ملك المعلومات", Description: "فزت في أول لعبة أسئلة."},
	{ID: AchievementChattyUser, Title: "رفيق مقرب", Description: "أرسلت 50 رسالة في محادثة واحدة."},
}

// Achievements returns a copy of the catalog in display order.
func Achievements() []Achievement {
	out := make([]Achievement, len(catalog))
	copy(out, catalog)
	return out
}

// LookupAchievement returns the catalog entry for id.
func LookupAchievement(id AchievementID) (Achievement, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}
