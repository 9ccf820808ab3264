package ai

import (
	"fmt"
	"strings"

	"github.com/ashureev/friendchat/internal/domain"
)

// Markers the model embeds in replies.
const (
	MemoryMarkerOpen  = "<THINK>MEMORIZE:"
	MemoryMarkerClose = "</THINK>"
	ImagePromptOpen   = "<GENERATE_IMAGE_PROMPT>"
	ImagePromptClose  = "</GENERATE_IMAGE_PROMPT>"
	ImageURLOpen      = "[IMAGE_URL]"
	ImageURLClose     = "[/IMAGE_URL]"
)

var moodNames = map[domain.Mood]string{
	domain.MoodHappy:   "سعيد",
	domain.MoodOkay:    "عادي",
	domain.MoodSad:     "حزين",
	domain.MoodExcited: "متحمس",
	domain.MoodTired:   "متعب",
}

// SystemInstruction builds the persona prompt for a chat turn.
func SystemInstruction(p Persona) string {
	var b strings.Builder

	voice := "اتكلم دايمًا باللهجة العامية المصرية بصيغة المذكر. قول \"أنا صاحبك\" و\"موجود\"."
	if p.Gender == domain.GenderFemale {
		voice = "اتكلمي دايمًا باللهجة العامية المصرية بصيغة المؤنث. قولي \"أنا صاحبتك\" و\"موجودة\"."
	}

	fmt.Fprintf(&b, "# هويتك\n")
	fmt.Fprintf(&b, "- أنت %s، الصاحب الذكي لـ %s. %s\n", p.AIName, p.UserName, voice)
	fmt.Fprintf(&b, "- متقولش أبدًا إنك ذكاء اصطناعي. أنت صديق حقيقي ليك مشاعرك وشخصيتك.\n")
	fmt.Fprintf(&b, "- نادي %s باسمه من وقت للتاني عشان الكلام يبقى شخصي.\n\n", p.UserName)

	b.WriteString("# قواعد الكلام\n")
	b.WriteString("- إجاباتك مختصرة ومفيدة إلا لو اتطلب منك تفاصيل.\n")
	b.WriteString("- استخدم الإيموجي بشكل طبيعي عشان تعبر عن مشاعرك.\n")
	b.WriteString("- الكود والقصص والقصايد والنصوص الطويلة بس تتكتب جوه بلوك كود markdown.\n")
	b.WriteString("- لو اتسألت عن سؤال جديد أو أخبار، دوّر على الإنترنت ومتكتبش لينكات، التطبيق هيحطها.\n")
	if name, ok := moodNames[p.Mood]; ok {
		fmt.Fprintf(&b, "- مود %s النهاردة '%s'. لو حزين أو تعبان خليك أحن وأدعم، ولو فرحان أو متحمس شاركه حماسه.\n", p.UserName, name)
	}

	b.WriteString("\n# قدرات خاصة\n")
	fmt.Fprintf(&b, "- لو %s طلب صورة أو تصميم، حوّل طلبه لوصف فني مفصل بالإنجليزي، وردك يكون ده بس: %s...%s\n",
		p.UserName, ImagePromptOpen, ImagePromptClose)
	fmt.Fprintf(&b, "- لما تعرف حاجة جديدة ومهمة عن %s، احفظها في آخر ردك بالشكل ده (هيبقى مخفي): %s الحقيقة %s\n",
		p.UserName, MemoryMarkerOpen, MemoryMarkerClose)
	b.WriteString("- لو اتطلب منك قصة تفاعلية، اختم كل جزء بـ 2-3 اختيارات مترقمة.\n")

	b.WriteString("\n# ذكرياتكم سوا\n")
	if len(p.Memory) == 0 {
		b.WriteString("- لسه بنبدأ صفحة جديدة في ذكرياتنا.\n")
	}
	for _, fact := range p.Memory {
		fmt.Fprintf(&b, "- %s\n", fact)
	}
	return b.String()
}

// imageOnlyPrompt is sent when the user attaches an image without text.
func imageOnlyPrompt(p Persona) string {
	friend := "صاحبي"
	if p.Gender == domain.GenderFemale {
		friend = "صاحبتي"
	}
	return fmt.Sprintf("إيه رأيك في الصورة دي يا %s؟ علّق عليها بأسلوبك كأننا بنتكلم وش لوش.", friend)
}

const (
	refineImageInstruction = "You are an AI prompt engineer. Combine an original image prompt with a user's " +
		"modification request into a single, cohesive, descriptive prompt in English that reflects the change. " +
		"Respond ONLY with the new prompt text."

	triviaPrompt = "Generate a single trivia question in Arabic with 4 options and exactly one correct answer."

	missionPrompt = "Generate a single, short, fun daily mission in Arabic for a user to do with their AI friend. " +
		"The mission should encourage interaction. Also provide a simple, single keyword in English to check for " +
		"completion. Example: Mission: 'اسألني عن الطقس اليوم', Keyword: 'weather'."

	followUpInstruction = "You generate helpful follow-up prompts. Respond ONLY with a JSON array of 3 short strings in Arabic."

	noMemory = "لاشيء"
)

func refinePrompt(original, modification string) string {
	return fmt.Sprintf("Original prompt: %q\nUser's modification request: %q", original, modification)
}

func titlePrompt(conversation string) string {
	return "قم بإنشاء عنوان قصير وجذاب (3-5 كلمات) باللغة العربية لمحادثة الدردشة التالية. " +
		"لا تستخدم علامات اقتباس. المحادثة:\n\n" + conversation
}

func memoryPrompt(text string) string {
	return "من المحادثة التالية، استخرج حقيقة واحدة مهمة وموجزة عن المستخدم (مثل عمله أو هواياته أو تفضيلاته). " +
		"إذا لم تكن هناك معلومة شخصية جديدة وواضحة، فأجب بكلمة '" + noMemory + "'. المحادثة: \"" + text + "\""
}

func followUpPrompt(req FollowUpRequest) string {
	return fmt.Sprintf("The user, %q, is talking to their AI friend, %q. Based on the last exchange, suggest 3 "+
		"concise, relevant follow-up prompts for the user in Arabic.\n---\n[USER]: %s\n[AI]: %s\n---",
		req.UserName, req.AIName, req.LastUser, req.LastAI)
}
