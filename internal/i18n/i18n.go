// Package i18n provides the localized canned strings shown in conversations.
package i18n

import (
	"embed"
	"fmt"

	gi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Message ids.
const (
	ErrorGeneric     = "error_generic"
	ErrorNetwork     = "error_network"
	ErrorSafety      = "error_safety"
	ErrorServer      = "error_server"
	ErrorParse       = "error_parse"
	GreetingSetup    = "greeting_setup"
	GreetingNewChat1 = "greeting_new_chat_1"
	GreetingNewChat2 = "greeting_new_chat_2"
	TitleSetup       = "title_setup"
	TitleNewChat     = "title_new_chat"
	TriviaIntro      = "trivia_intro"
	TriviaCorrect    = "trivia_correct"
	TriviaWrong      = "trivia_wrong"
	TriviaAgain      = "trivia_again"
	MissionCompleted = "mission_completed"
	ImageGenerated   = "image_generated"
	ImageEdited      = "image_edited"
	ImageEditRequest = "image_edit_request"
	FileReadError    = "file_read_error"
	SourcesHeader    = "sources_header"
)

// NewChatGreetings lists the greetings picked at random for a new chat.
var NewChatGreetings = []string{GreetingNewChat1, GreetingNewChat2}

var supported = []string{"ar", "en"}

func newBundle() (*gi18n.Bundle, error) {
	bundle := gi18n.NewBundle(language.Arabic)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)
	for _, lang := range supported {
		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+lang+".yaml"); err != nil {
			return nil, fmt.Errorf("load %s messages: %w", lang, err)
		}
	}
	return bundle, nil
}

// Init returns a localizer for lang, falling back to Arabic.
func Init(lang string) (*gi18n.Localizer, error) {
	bundle, err := newBundle()
	if err != nil {
		return nil, err
	}
	return gi18n.NewLocalizer(bundle, lang, "ar"), nil
}

// Catalog renders canned strings for one locale.
type Catalog struct {
	loc  *gi18n.Localizer
	lang string
}

// New creates a Catalog for lang.
func New(lang string) (*Catalog, error) {
	loc, err := Init(lang)
	if err != nil {
		return nil, err
	}
	return &Catalog{loc: loc, lang: lang}, nil
}

// Lang returns the configured language tag.
func (c *Catalog) Lang() string {
	return c.lang
}

// T renders message id with optional template data. Unknown ids render as
// the id itself.
func (c *Catalog) T(id string, data map[string]any) string {
	msg, err := c.loc.Localize(&gi18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return id
	}
	return msg
}
