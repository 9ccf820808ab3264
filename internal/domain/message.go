package domain

import (
	"slices"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAI     Sender = "ai"
	SenderSystem Sender = "system"
)

// MessageType tags messages carrying a structured payload.
type MessageType string

const (
	MessageText             MessageType = ""
	MessageTrivia           MessageType = "trivia"
	MessageMissionCompleted MessageType = "mission_completed"
	MessageGeneratedImage   MessageType = "generated_image"
	MessageSourceInfo       MessageType = "source_info"
)

// GreetingMessageID is the fixed id of the first greeting in a setup session.
const GreetingMessageID = "init"

// Image is an image attached to a message. Data holds inline bytes; URL points
// to an external object; PreviewURL is a view-only handle that is never stored.
type Image struct {
	Data       []byte `json:"data,omitempty"`
	MIMEType   string `json:"mimeType,omitempty"`
	URL        string `json:"url,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

// Empty reports whether the image carries nothing worth keeping.
func (i *Image) Empty() bool {
	return i == nil || (len(i.Data) == 0 && i.URL == "" && i.PreviewURL == "")
}

// Source is a web citation attached to a reply.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is one entry of a conversation.
type Message struct {
	ID             string      `json:"id"`
	Sender         Sender      `json:"sender"`
	Text           string      `json:"text"`
	Timestamp      time.Time   `json:"timestamp"`
	Type           MessageType `json:"type,omitempty"`
	Image          *Image      `json:"image,omitempty"`
	OriginalPrompt string      `json:"originalPrompt,omitempty"`
	FileName       string      `json:"fileName,omitempty"`
	Trivia         *Trivia     `json:"trivia,omitempty"`
	Sources        []Source    `json:"sources,omitempty"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.Image != nil {
		img := *m.Image
		img.Data = slices.Clone(img.Data)
		m.Image = &img
	}
	if m.Trivia != nil {
		t := m.Trivia.Clone()
		m.Trivia = &t
	}
	m.Sources = slices.Clone(m.Sources)
	return m
}

// Persistable returns the durable form of the message: preview URLs are
// dropped, and so are the inline bytes of user uploads. Generated image
// bytes are kept.
func (m Message) Persistable() Message {
	m = m.Clone()
	if m.Image == nil {
		return m
	}
	m.Image.PreviewURL = ""
	if m.Sender == SenderUser {
		m.Image.Data = nil
	}
	if m.Image.Empty() {
		m.Image = nil
	}
	return m
}
