package chat

import (
	"fmt"
	"strings"

	"github.com/ashureev/friendchat/internal/ai"
	"github.com/ashureev/friendchat/internal/domain"
)

// reply is a model answer split into its hidden directives and the text
// that is shown to the user.
type reply struct {
	Facts       []string
	ImagePrompt string
	ImageURL    string
	Text        string
}

var hiddenMarkers = []string{ai.MemoryMarkerOpen, ai.ImagePromptOpen, ai.ImageURLOpen}

// cut removes the first open...close span from s.
func cut(s, open, close string) (inner, rest string, ok bool) {
	i := strings.Index(s, open)
	if i < 0 {
		return "", s, false
	}
	start := i + len(open)
	j := strings.Index(s[start:], close)
	if j < 0 {
		return "", s, false
	}
	return s[start : start+j], s[:i] + s[start+j+len(close):], true
}

func parseReply(raw string) reply {
	var r reply
	text := raw
	for {
		fact, rest, ok := cut(text, ai.MemoryMarkerOpen, ai.MemoryMarkerClose)
		if !ok {
			break
		}
		text = rest
		if fact = strings.TrimSpace(fact); fact != "" {
			r.Facts = append(r.Facts, fact)
		}
	}
	text = strings.TrimSpace(text)

	if prompt, _, ok := cut(text, ai.ImagePromptOpen, ai.ImagePromptClose); ok {
		if prompt = strings.TrimSpace(prompt); prompt != "" {
			r.ImagePrompt = prompt
			return r
		}
	}

	if url, rest, ok := cut(text, ai.ImageURLOpen, ai.ImageURLClose); ok {
		if url = strings.TrimSpace(url); url != "" {
			r.ImageURL = url
			text = strings.TrimSpace(rest)
		}
	}
	r.Text = text
	return r
}

// visiblePrefix returns the part of a partially streamed answer that can be
// shown: everything before the first hidden marker, minus a trailing
// fragment that may still grow into one.
func visiblePrefix(text string) string {
	end := len(text)
	for _, m := range hiddenMarkers {
		if i := strings.Index(text, m); i >= 0 && i < end {
			end = i
		}
	}
	text = text[:end]

	held := 0
	for _, m := range hiddenMarkers {
		for k := min(len(m)-1, len(text)); k > held; k-- {
			if strings.HasSuffix(text, m[:k]) {
				held = k
				break
			}
		}
	}
	return text[:len(text)-held]
}

// sourcesText renders citations as a numbered markdown list. Sources without
// a URI are skipped; the numbering follows the original positions.
func sourcesText(header string, sources []domain.Source) string {
	var b strings.Builder
	for i, s := range sources {
		if s.URI == "" {
			continue
		}
		title := s.Title
		if title == "" {
			title = s.URI
		}
		title = strings.NewReplacer("[", "", "]", "").Replace(title)
		fmt.Fprintf(&b, "\n%d. [%s](%s)", i+1, title, s.URI)
	}
	if b.Len() == 0 {
		return ""
	}
	return header + b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
