package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/model/chat"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// AnthropicGenerator calls the Messages API.
type AnthropicGenerator struct {
	client anthropic.Client
	model  string
	opts   Options
}

// NewAnthropicGenerator creates the generator; extra options are appended
// after the API key (base URL overrides, retries).
func NewAnthropicGenerator(cfg config.AnthropicConfig, opts Options, extra ...option.RequestOption) *AnthropicGenerator {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, extra...)
	return &AnthropicGenerator{
		client: anthropic.NewClient(reqOpts...),
		model:  cfg.Model,
		opts:   opts,
	}
}

func (g *AnthropicGenerator) Name() string { return "anthropic" }

// Complete sends the dialogue with the system text out of band.
func (g *AnthropicGenerator) Complete(ctx context.Context, history []chat.Message) (*chat.Completion, error) {
	system, turns := splitSystem(history)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.opts.maxTokens(),
		Messages:  toAnthropicMessages(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if g.opts.Temperature != nil {
		params.Temperature = anthropic.Float(*g.opts.Temperature)
	}

	logger.Debug("sending anthropic request", "model", g.model, "messages", len(turns))
	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, utils.WrapError(g.Name(), "complete", normalizeAnthropicError(err))
	}

	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}
	text := content.String()
	if blankCompletion(text) {
		return nil, utils.WrapError(g.Name(), "complete", ErrEmptyResponse)
	}

	return &chat.Completion{
		Text: text,
		Usage: &chat.Usage{
			PromptTokens:     intPtr64(message.Usage.InputTokens),
			CompletionTokens: intPtr64(message.Usage.OutputTokens),
		},
	}, nil
}

func toAnthropicMessages(turns []chat.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		switch msg.Role {
		case chat.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case chat.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return messages
}

func normalizeAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &utils.APIError{
			StatusCode: apiErr.StatusCode,
			Message:    http.StatusText(apiErr.StatusCode),
			Provider:   "anthropic",
		}
	}
	return fmt.Errorf("request failed: %w", err)
}
