package i18n

import (
	"testing"

	gi18n "github.com/nicksnyder/go-i18n/v2/i18n"
)

func TestTranslation(t *testing.T) {
	cases := []struct {
		lang, expected string
	}{
		{"ar", "أحسنت! لقد أكملت مهمة اليوم."},
		{"en", "Well done! You completed today's mission."},
		{"fr", "أحسنت! لقد أكملت مهمة اليوم."},
	}

	for _, tc := range cases {
		t.Run(tc.lang, func(t *testing.T) {
			loc, err := Init(tc.lang)
			if err != nil {
				t.Fatalf("init failed: %v", err)
			}
			msg, err := loc.Localize(&gi18n.LocalizeConfig{MessageID: MissionCompleted})
			if err != nil {
				t.Fatalf("localize failed: %v", err)
			}
			if msg != tc.expected {
				t.Fatalf("unexpected translation (%s): %q", tc.lang, msg)
			}
		})
	}
}

func TestCatalogTemplates(t *testing.T) {
	c, err := New("ar")
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	got := c.T(TriviaWrong, map[string]any{"Answer": "القاهرة"})
	if want := `إجابة خاطئة. الإجابة الصحيحة هي: "القاهرة".`; got != want {
		t.Errorf("T(%s) = %q, want %q", TriviaWrong, got, want)
	}
	got = c.T(TitleSetup, map[string]any{"AI": "Karim"})
	if want := "محادثة مع Karim"; got != want {
		t.Errorf("T(%s) = %q, want %q", TitleSetup, got, want)
	}
	if got := c.T("missing_id", nil); got != "missing_id" {
		t.Errorf("unknown id rendered %q", got)
	}
}

func TestEveryMessageTranslated(t *testing.T) {
	ids := []string{
		ErrorGeneric, ErrorNetwork, ErrorSafety, ErrorServer, ErrorParse,
		GreetingSetup, GreetingNewChat1, GreetingNewChat2, TitleSetup, TitleNewChat,
		TriviaIntro, TriviaCorrect, TriviaWrong, TriviaAgain, MissionCompleted,
		ImageGenerated, ImageEdited, ImageEditRequest, FileReadError, SourcesHeader,
	}
	for _, lang := range supported {
		c, err := New(lang)
		if err != nil {
			t.Fatalf("new catalog %s: %v", lang, err)
		}
		for _, id := range ids {
			if got := c.T(id, map[string]any{"User": "u", "AI": "a", "Answer": "x", "Modification": "m"}); got == id {
				t.Errorf("%s: message %s missing", lang, id)
			}
		}
	}
}
