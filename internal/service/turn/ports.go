// Package turn drives one conversational turn end to end: transcribe, append
// the user record, generate, post-process, append the reply, persist, and
// synthesize.
package turn

import (
	"context"

	"github.com/zhouzirui/z-voice/internal/model/chat"
	"github.com/zhouzirui/z-voice/internal/model/speech"
)

// Transcriber turns a finished recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, rec speech.Recording) (string, error)
}

// Generator answers the whole conversation history.
type Generator interface {
	Complete(ctx context.Context, history []chat.Message) (*chat.Completion, error)
}

// Synthesizer renders plain text as encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*speech.Audio, error)
}

type named interface {
	Name() string
}

// providerName 用于日志和指标标签。
func providerName(p any) string {
	if n, ok := p.(named); ok {
		return n.Name()
	}
	return "custom"
}
