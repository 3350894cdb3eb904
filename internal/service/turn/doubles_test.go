package turn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-voice/internal/model/chat"
	"github.com/zhouzirui/z-voice/internal/model/speech"
	chatsvc "github.com/zhouzirui/z-voice/internal/service/chat"
)

const testPreamble = "Eres Marc."

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type recordingTranscriber struct {
	mu    sync.Mutex
	texts []string
	err   error
	calls int
}

func (r *recordingTranscriber) Name() string { return "fake-stt" }

func (r *recordingTranscriber) Transcribe(_ context.Context, _ speech.Recording) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	if len(r.texts) == 0 {
		return "", nil
	}
	text := r.texts[0]
	if len(r.texts) > 1 {
		r.texts = r.texts[1:]
	}
	return text, nil
}

type scriptedGenerator struct {
	mu       sync.Mutex
	replies  []*chat.Completion
	err      error
	calls    int
	received [][]chat.Message
}

func (g *scriptedGenerator) Complete(_ context.Context, history []chat.Message) (*chat.Completion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.received = append(g.received, history)
	if g.err != nil {
		return nil, g.err
	}
	reply := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return reply, nil
}

type recordingSynthesizer struct {
	mu    sync.Mutex
	audio *speech.Audio
	err   error
	texts []string
}

func (s *recordingSynthesizer) Synthesize(_ context.Context, text string) (*speech.Audio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

func (s *recordingSynthesizer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventSink) observe(ev Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventSink) states(turn int) []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []State
	for _, ev := range e.events {
		if ev.Turn == turn {
			out = append(out, ev.State)
		}
	}
	return out
}

func newTestSession(t *testing.T) *chatsvc.Session {
	t.Helper()
	session, err := chatsvc.NewSession(t.TempDir(), testPreamble, fixedNow)
	require.NoError(t, err)
	return session
}

func testRecording() speech.Recording {
	return speech.NewRecording(make([]byte, 3200))
}

func reply(text string, usage *chat.Usage) *chat.Completion {
	return &chat.Completion{Text: text, Usage: usage}
}
