package ai

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/ashureev/friendchat/internal/domain"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey         string
	TextModel      string
	ImageModel     string
	RequestTimeout time.Duration
}

// DefaultGeminiConfig returns default configuration.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		TextModel:      "gemini-2.5-flash",
		ImageModel:     "imagen-3.0-generate-002",
		RequestTimeout: 60 * time.Second,
	}
}

// Gemini implements Client on top of the Gemini API.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewGemini creates a Gemini-backed client.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	defaults := DefaultGeminiConfig()
	if cfg.TextModel == "" {
		cfg.TextModel = defaults.TextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = defaults.ImageModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Info("Gemini client ready", "text_model", cfg.TextModel, "image_model", cfg.ImageModel)
	return &Gemini{client: client, cfg: cfg, logger: logger}, nil
}

// Close releases resources. The SDK client holds no connections of its own.
func (g *Gemini) Close() {}

// Stats returns call counters.
func (g *Gemini) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *Gemini) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.Calls++
	if err != nil {
		g.stats.Failures++
		g.stats.LastFailure = time.Now()
	}
}

func (g *Gemini) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.RequestTimeout)
}

func toContents(req ChatRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		contents = append(contents, toContent(t))
	}

	msg := req.Message
	msg.Role = RoleUser
	if len(msg.Image) > 0 {
		if msg.Text == "" {
			msg.Text = imageOnlyPrompt(req.Persona)
		} else {
			msg.Text = fmt.Sprintf("يا %s، بص على الصورة دي. %s", req.Persona.AIName, msg.Text)
		}
	}
	return append(contents, toContent(msg))
}

func toContent(t Turn) *genai.Content {
	var parts []*genai.Part
	if t.Text != "" {
		parts = append(parts, genai.NewPartFromText(t.Text))
	}
	if len(t.Image) > 0 && t.MIMEType != "" {
		parts = append(parts, genai.NewPartFromBytes(t.Image, t.MIMEType))
	}
	var role genai.Role = genai.RoleUser
	if t.Role == RoleModel {
		role = genai.RoleModel
	}
	return genai.NewContentFromParts(parts, role)
}

func (g *Gemini) chatConfig(req ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction(req.Persona), genai.RoleUser),
	}
	if req.WebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return cfg
}

// Chat sends one turn and waits for the full answer.
func (g *Gemini) Chat(ctx context.Context, req ChatRequest) (reply *ChatReply, err error) {
	defer func() { g.record(err) }()

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.TextModel, toContents(req), g.chatConfig(req))
	if err != nil {
		return nil, wrap("chat", Unknown, err)
	}
	if err := blocked(resp); err != nil {
		return nil, wrap("chat", SafetyRejection, err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, &Error{Kind: Unknown, Op: "chat", Err: ErrEmptyResponse}
	}
	return &ChatReply{Text: text, Sources: responseSources(resp)}, nil
}

// ChatStream sends one turn and yields the answer incrementally.
func (g *Gemini) ChatStream(ctx context.Context, req ChatRequest) iter.Seq2[*ChatChunk, error] {
	return func(yield func(*ChatChunk, error) bool) {
		ctx, cancel := g.withTimeout(ctx)
		defer cancel()

		var streamErr error
		defer func() { g.record(streamErr) }()

		produced := false
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.cfg.TextModel, toContents(req), g.chatConfig(req)) {
			if err != nil {
				streamErr = wrap("chat stream", Unknown, err)
				yield(nil, streamErr)
				return
			}
			if err := blocked(resp); err != nil {
				streamErr = wrap("chat stream", SafetyRejection, err)
				yield(nil, streamErr)
				return
			}

			chunk := &ChatChunk{Text: responseText(resp), Sources: responseSources(resp)}
			if chunk.Text == "" && len(chunk.Sources) == 0 {
				continue
			}
			produced = produced || chunk.Text != ""
			if !yield(chunk, nil) {
				return
			}
		}
		if !produced {
			streamErr = &Error{Kind: Unknown, Op: "chat stream", Err: ErrEmptyResponse}
			yield(nil, streamErr)
		}
	}
}

// GenerateImage renders prompt into a JPEG image.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string) (img *GeneratedImage, err error) {
	defer func() { g.record(err) }()

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.client.Models.GenerateImages(ctx, g.cfg.ImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
		AspectRatio:    "1:1",
	})
	if err != nil {
		return nil, wrap("generate image", Unknown, err)
	}

	// No image almost always means the prompt was filtered.
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil ||
		len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		reason := ""
		if len(resp.GeneratedImages) > 0 {
			reason = resp.GeneratedImages[0].RAIFilteredReason
		}
		return nil, &Error{Kind: SafetyRejection, Op: "generate image", Err: fmt.Errorf("%w: %s", ErrBlocked, reason)}
	}

	out := resp.GeneratedImages[0].Image
	mime := out.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return &GeneratedImage{Data: out.ImageBytes, MIMEType: mime}, nil
}

func (g *Gemini) generateText(ctx context.Context, op, prompt string, cfg *genai.GenerateContentConfig) (text string, err error) {
	defer func() { g.record(err) }()

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.TextModel, genai.Text(prompt), cfg)
	if err != nil {
		return "", wrap(op, Unknown, err)
	}
	if err := blocked(resp); err != nil {
		return "", wrap(op, SafetyRejection, err)
	}
	text = strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", &Error{Kind: ParseFailure, Op: op, Err: ErrEmptyResponse}
	}
	return text, nil
}

func jsonConfig(schema *genai.Schema, instruction string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if instruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}
	return cfg
}

// RefineImagePrompt merges a modification request into an image prompt.
func (g *Gemini) RefineImagePrompt(ctx context.Context, original, modification string) (string, error) {
	return g.generateText(ctx, "refine image prompt", refinePrompt(original, modification), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(refineImageInstruction, genai.RoleUser),
	})
}

// Trivia produces a multiple-choice question.
func (g *Gemini) Trivia(ctx context.Context) (domain.Trivia, error) {
	text, err := g.generateText(ctx, "trivia", triviaPrompt, jsonConfig(triviaSchema, ""))
	if err != nil {
		return domain.Trivia{}, err
	}
	t, err := decodeTrivia(text)
	if err != nil {
		return domain.Trivia{}, &Error{Kind: ParseFailure, Op: "trivia", Err: err}
	}
	return t, nil
}

// DailyMission produces a mission with a completion keyword.
func (g *Gemini) DailyMission(ctx context.Context) (domain.DailyMission, error) {
	text, err := g.generateText(ctx, "daily mission", missionPrompt, jsonConfig(missionSchema, ""))
	if err != nil {
		return domain.DailyMission{}, err
	}
	m, err := decodeMission(text)
	if err != nil {
		return domain.DailyMission{}, &Error{Kind: ParseFailure, Op: "daily mission", Err: err}
	}
	return m, nil
}

// Title summarizes a conversation into a short title.
func (g *Gemini) Title(ctx context.Context, conversation string) (string, error) {
	text, err := g.generateText(ctx, "title", titlePrompt(conversation), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", err
	}
	return cleanTitle(text), nil
}

// ExtractMemory pulls one durable fact about the user out of text.
func (g *Gemini) ExtractMemory(ctx context.Context, text string) (string, error) {
	out, err := g.generateText(ctx, "extract memory", memoryPrompt(text), nil)
	if err != nil {
		return "", err
	}
	return cleanMemory(out), nil
}

// FollowUps suggests up to three next prompts for the user.
func (g *Gemini) FollowUps(ctx context.Context, req FollowUpRequest) ([]string, error) {
	text, err := g.generateText(ctx, "follow ups", followUpPrompt(req), jsonConfig(followUpSchema, followUpInstruction))
	if err != nil {
		return nil, err
	}
	out, err := decodeFollowUps(text)
	if err != nil {
		return nil, &Error{Kind: ParseFailure, Op: "follow ups", Err: err}
	}
	return out, nil
}

// responseText concatenates the text parts of the first candidate,
// skipping thought summaries.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// responseSources extracts web citations from grounding metadata.
func responseSources(resp *genai.GenerateContentResponse) []domain.Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []domain.Source
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = chunk.Web.URI
		}
		out = append(out, domain.Source{URI: chunk.Web.URI, Title: title})
	}
	return out
}

// blocked reports a safety block on the prompt or the first candidate.
func blocked(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return nil
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return fmt.Errorf("%w: prompt %s", ErrBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return fmt.Errorf("%w: candidate %s", ErrBlocked, resp.Candidates[0].FinishReason)
	}
	return nil
}
