package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/zhouzirui/z-voice/internal/analysis/emotion"
	"github.com/zhouzirui/z-voice/internal/model/chat"
)

var (
	ErrInvalidRecord = errors.New("record has no role")
	ErrCorruptLog    = errors.New("conversation log does not start with a system preamble")
)

// Log is the ordered, append-only conversation transcript. Element 0 is the
// persona preamble written by NewLog and never changed afterwards.
type Log struct {
	mu      sync.RWMutex
	path    string
	records []chat.Record
}

// NewLog starts a transcript persisted at path.
func NewLog(path, preamble string) *Log {
	return &Log{
		path:    path,
		records: []chat.Record{chat.SystemRecord(preamble)},
	}
}

// LoadLog reads a transcript previously written by Persist.
func LoadLog(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conversation log: %w", err)
	}

	var records []chat.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode conversation log: %w", err)
	}
	if len(records) == 0 || records[0].Role != chat.RoleSystem {
		return nil, ErrCorruptLog
	}

	return &Log{path: path, records: records}, nil
}

// Path returns where Persist writes.
func (l *Log) Path() string {
	return l.path
}

// Append adds rec to the end of the transcript.
func (l *Log) Append(rec chat.Record) error {
	if rec.Role == "" {
		return ErrInvalidRecord
	}

	l.mu.Lock()
	l.records = append(l.records, cloneRecord(rec))
	l.mu.Unlock()
	return nil
}

// AnnotateLastUser sets prompt_tokens on the most recent user record.
// It reports false when there is no user record.
func (l *Log) AnnotateLastUser(promptTokens *int) bool {
	if promptTokens == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.records) - 1; i > 0; i-- {
		if l.records[i].Role == chat.RoleUser {
			v := *promptTokens
			l.records[i].PromptTokens = &v
			return true
		}
	}
	return false
}

// Rederive recomputes the derived fields of every assistant record from its
// content_raw and returns how many records changed.
func (l *Log) Rederive(fn func(raw string) (ui, tts string, expression *emotion.Label)) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := 0
	for i := 1; i < len(l.records); i++ {
		rec := &l.records[i]
		if rec.Role != chat.RoleAssistant {
			continue
		}
		ui, tts, expr := fn(rec.ContentRaw)
		if ui == rec.ContentUI && tts == rec.ContentTTS && sameLabel(expr, rec.Expression) {
			continue
		}
		rec.ContentUI, rec.ContentTTS, rec.Expression = ui, tts, expr
		changed++
	}
	return changed
}

// Len returns the number of records, preamble included.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Preamble returns the system text at element 0.
func (l *Log) Preamble() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[0].Content
}

// Records returns a deep copy of the transcript.
func (l *Log) Records() []chat.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]chat.Record, len(l.records))
	for i, rec := range l.records {
		out[i] = cloneRecord(rec)
	}
	return out
}

// Messages reduces the transcript to the generation port's {role, content}
// shape. Assistant records contribute content_raw; records missing a role or
// text are skipped.
func (l *Log) Messages() []chat.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	messages := make([]chat.Message, 0, len(l.records))
	for _, rec := range l.records {
		text := rec.Text()
		if rec.Role == "" || text == "" {
			continue
		}
		messages = append(messages, chat.Message{Role: rec.Role, Content: text})
	}
	return messages
}

// Persist rewrites the whole transcript atomically. Safe to call repeatedly.
func (l *Log) Persist() error {
	if l.path == "" {
		return errors.New("conversation log has no path")
	}

	l.mu.RLock()
	data, err := encodeJSON(l.records)
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode conversation log: %w", err)
	}

	if err := writeFileAtomic(l.path, data, 0o644); err != nil {
		return fmt.Errorf("persist conversation log: %w", err)
	}
	return nil
}

func cloneRecord(rec chat.Record) chat.Record {
	if rec.Expression != nil {
		v := *rec.Expression
		rec.Expression = &v
	}
	if rec.PromptTokens != nil {
		v := *rec.PromptTokens
		rec.PromptTokens = &v
	}
	if rec.CompletionTokens != nil {
		v := *rec.CompletionTokens
		rec.CompletionTokens = &v
	}
	if rec.CompletionTime != nil {
		v := *rec.CompletionTime
		rec.CompletionTime = &v
	}
	return rec
}

func sameLabel(a, b *emotion.Label) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
