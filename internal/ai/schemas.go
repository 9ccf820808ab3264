package ai

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/genai"

	"github.com/ashureev/friendchat/internal/domain"
)

var triviaSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"question": {Type: genai.TypeString, Description: "The trivia question in Arabic."},
		"options": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "An array of 4 possible answers in Arabic.",
		},
		"answer": {Type: genai.TypeString, Description: "The correct answer, which must be one of the options."},
	},
	Required: []string{"question", "options", "answer"},
}

var missionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"mission": {Type: genai.TypeString, Description: "The mission text in Arabic."},
		"keyword": {Type: genai.TypeString, Description: "A single, simple English keyword for programmatic checking."},
	},
	Required: []string{"mission", "keyword"},
}

var followUpSchema = &genai.Schema{
	Type:        genai.TypeArray,
	Items:       &genai.Schema{Type: genai.TypeString},
	Description: "An array of exactly 3 suggested user prompts in Arabic.",
}

type triviaPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

type missionPayload struct {
	Mission string `json:"mission"`
	Keyword string `json:"keyword"`
}

// stripCodeFence removes a ```json fence some models wrap structured output in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decodeTrivia(text string) (domain.Trivia, error) {
	var p triviaPayload
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &p); err != nil {
		return domain.Trivia{}, fmt.Errorf("decode trivia json: %w", err)
	}
	if p.Question == "" || len(p.Options) < 2 {
		return domain.Trivia{}, fmt.Errorf("decode trivia json: incomplete question")
	}
	if !slices.Contains(p.Options, p.Answer) {
		return domain.Trivia{}, fmt.Errorf("decode trivia json: answer %q is not an option", p.Answer)
	}
	return domain.Trivia{Question: p.Question, Options: p.Options, Answer: p.Answer}, nil
}

func decodeMission(text string) (domain.DailyMission, error) {
	var p missionPayload
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &p); err != nil {
		return domain.DailyMission{}, fmt.Errorf("decode mission json: %w", err)
	}
	if strings.TrimSpace(p.Mission) == "" || strings.TrimSpace(p.Keyword) == "" {
		return domain.DailyMission{}, fmt.Errorf("decode mission json: missing fields")
	}
	return domain.DailyMission{
		Text:    strings.TrimSpace(p.Mission),
		Keyword: strings.ToLower(strings.TrimSpace(p.Keyword)),
	}, nil
}

func decodeFollowUps(text string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &out); err != nil {
		return nil, fmt.Errorf("decode suggestions json: %w", err)
	}
	out = slices.DeleteFunc(out, func(s string) bool { return strings.TrimSpace(s) == "" })
	if len(out) > 3 {
		out = out[:3]
	}
	return out, nil
}

// cleanTitle trims a model-generated title and drops quotes.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(`"`, "", "«", "", "»", "", "“", "", "”", "").Replace(s)
	return strings.TrimSpace(s)
}

// cleanMemory returns the fact, or "" when the model found nothing.
func cleanMemory(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, noMemory) || len([]rune(s)) >= 100 {
		return ""
	}
	return s
}
