package ai

import (
	"strings"

	"github.com/zhouzirui/z-voice/internal/model/chat"
)

// Options 是各生成供应商共享的采样参数。
type Options struct {
	MaxTokens   int
	Temperature *float64
}

func (o Options) maxTokens() int64 {
	if o.MaxTokens <= 0 {
		return 500
	}
	return int64(o.MaxTokens)
}

// splitSystem separates system text from the dialogue for APIs that take the
// system prompt out of band. Error annotations are audit trail only and are
// not forwarded to those APIs.
func splitSystem(history []chat.Message) (string, []chat.Message) {
	var (
		system []string
		turns  = make([]chat.Message, 0, len(history))
	)
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleSystem:
			if strings.HasPrefix(msg.Content, chat.ErrorPrefix) {
				continue
			}
			system = append(system, msg.Content)
		case chat.RoleUser, chat.RoleAssistant:
			turns = append(turns, msg)
		}
	}
	return strings.Join(system, "\n\n"), turns
}

// blankCompletion reports output that must be treated as a generation failure.
func blankCompletion(text string) bool {
	return strings.TrimSpace(text) == ""
}

func intPtr64(v int64) *int {
	n := int(v)
	return &n
}
