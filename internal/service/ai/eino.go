package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/model/chat"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// EinoGenerator runs any eino chat model through a compiled chain.
type EinoGenerator struct {
	name  string
	chain compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewArkGenerator builds the Volcengine Ark model from configuration.
func NewArkGenerator(ctx context.Context, cfg config.AIConfig) (*EinoGenerator, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewEinoGenerator(ctx, "ark", chatModel)
}

// NewEinoGenerator compiles a single-node chain around chatModel.
func NewEinoGenerator(ctx context.Context, name string, chatModel model.BaseChatModel) (*EinoGenerator, error) {
	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &EinoGenerator{name: name, chain: runnable}, nil
}

func (g *EinoGenerator) Name() string { return g.name }

// Complete invokes the chain with the converted history.
func (g *EinoGenerator) Complete(ctx context.Context, history []chat.Message) (*chat.Completion, error) {
	response, err := g.chain.Invoke(ctx, toSchemaMessages(history))
	if err != nil {
		return nil, utils.WrapError(g.name, "complete", err)
	}
	if response == nil || blankCompletion(response.Content) {
		return nil, utils.WrapError(g.name, "complete", ErrEmptyResponse)
	}

	logger.Debug("eino response received", "provider", g.name, "chars", len(response.Content))
	return &chat.Completion{Text: response.Content, Usage: schemaUsage(response)}, nil
}

func toSchemaMessages(history []chat.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleSystem:
			messages = append(messages, schema.SystemMessage(msg.Content))
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return messages
}

func schemaUsage(msg *schema.Message) *chat.Usage {
	if msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return nil
	}
	usage := msg.ResponseMeta.Usage
	return &chat.Usage{
		PromptTokens:     chat.IntPtr(usage.PromptTokens),
		CompletionTokens: chat.IntPtr(usage.CompletionTokens),
	}
}
