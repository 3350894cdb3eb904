package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/model/chat"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// ErrEmptyResponse is returned when a provider answers without usable text.
var ErrEmptyResponse = chat.ErrEmptyCompletion

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint:
// Groq, OpenRouter and OpenAI itself.
type OpenAIGenerator struct {
	name   string
	client openai.Client
	model  string
	opts   Options
}

// NewOpenAIGenerator builds a generator for the named provider.
func NewOpenAIGenerator(name string, cfg config.OpenAICompatConfig, opts Options, extra ...option.RequestOption) *OpenAIGenerator {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, extra...)

	return &OpenAIGenerator{
		name:   name,
		client: openai.NewClient(reqOpts...),
		model:  cfg.Model,
		opts:   opts,
	}
}

// Name returns the provider name used in logs and metrics.
func (g *OpenAIGenerator) Name() string {
	return g.name
}

// Complete sends the whole history and normalizes the answer.
func (g *OpenAIGenerator) Complete(ctx context.Context, history []chat.Message) (*chat.Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(g.model),
		Messages:  toOpenAIMessages(history),
		MaxTokens: openai.Int(g.opts.maxTokens()),
	}
	if g.opts.Temperature != nil {
		params.Temperature = openai.Float(*g.opts.Temperature)
	}

	logger.Debug("sending chat completion", "provider", g.name, "model", g.model, "messages", len(history))
	started := time.Now()
	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, utils.WrapError(g.name, "complete", normalizeOpenAIError(g.name, err))
	}

	if len(completion.Choices) == 0 {
		return nil, utils.WrapError(g.name, "complete", ErrEmptyResponse)
	}
	text := completion.Choices[0].Message.Content
	if blankCompletion(text) {
		return nil, utils.WrapError(g.name, "complete", ErrEmptyResponse)
	}

	usage := parseOpenAIUsage(completion.Usage.RawJSON())
	logger.Debug("chat completion received", "provider", g.name, "chars", len(text), "elapsed", time.Since(started))
	return &chat.Completion{Text: text, Usage: usage}, nil
}

func toOpenAIMessages(history []chat.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case chat.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case chat.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	return messages
}

// openAIUsage mirrors the usage object, including Groq's completion_time
// extension that the SDK keeps only as an extra field.
type openAIUsage struct {
	PromptTokens     *int     `json:"prompt_tokens"`
	CompletionTokens *int     `json:"completion_tokens"`
	CompletionTime   *float64 `json:"completion_time"`
}

func parseOpenAIUsage(raw string) *chat.Usage {
	if raw == "" || raw == "null" {
		return nil
	}
	var u openAIUsage
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		logger.Warn("ignoring malformed usage block", "err", err)
		return nil
	}
	if u.PromptTokens == nil && u.CompletionTokens == nil && u.CompletionTime == nil {
		return nil
	}
	return &chat.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		CompletionTime:   u.CompletionTime,
	}
}

func normalizeOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &utils.APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   provider,
		}
	}
	return fmt.Errorf("request failed: %w", err)
}
