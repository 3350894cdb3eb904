package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/model/chat"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// GeminiGenerator calls GenerateContent on the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	opts   Options
}

// NewGeminiGenerator creates the client eagerly so that bad credentials fail
// at startup.
func NewGeminiGenerator(ctx context.Context, cfg config.GeminiConfig, opts Options, baseURL string) (*GeminiGenerator, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientConfig.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: cfg.Model, opts: opts}, nil
}

func (g *GeminiGenerator) Name() string { return "gemini" }

// Complete sends the dialogue with the system prompt as SystemInstruction.
func (g *GeminiGenerator) Complete(ctx context.Context, history []chat.Message) (*chat.Completion, error) {
	system, turns := splitSystem(history)

	logger.Debug("sending gemini request", "model", g.model, "messages", len(turns))
	result, err := g.client.Models.GenerateContent(ctx, g.model, toGeminiContents(turns), g.buildConfig(system))
	if err != nil {
		return nil, utils.WrapError(g.Name(), "complete", err)
	}

	text := geminiText(result)
	if blankCompletion(text) {
		return nil, utils.WrapError(g.Name(), "complete", ErrEmptyResponse)
	}
	return &chat.Completion{Text: text, Usage: geminiUsage(result.UsageMetadata)}, nil
}

func (g *GeminiGenerator) buildConfig(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.opts.maxTokens()),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if g.opts.Temperature != nil {
		t := float32(*g.opts.Temperature)
		cfg.Temperature = &t
	}
	return cfg
}

func toGeminiContents(turns []chat.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		role := genai.RoleUser
		if msg.Role == chat.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return contents
}

// geminiText concatenates the non-thought text parts of every candidate.
func geminiText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) *chat.Usage {
	if meta == nil {
		return nil
	}
	return &chat.Usage{
		PromptTokens:     chat.IntPtr(int(meta.PromptTokenCount)),
		CompletionTokens: chat.IntPtr(int(meta.CandidatesTokenCount)),
	}
}
