package chat

import (
	"time"

	"github.com/zhouzirui/z-voice/internal/analysis/emotion"
)

// Role identifies the author of a turn record.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TimestampLayout 是 timestamp 字段的序列化格式（ISO-8601）。
const TimestampLayout = time.RFC3339Nano

// ErrorPrefix 标记追加到日志里的系统错误注释。
const ErrorPrefix = "[ERROR] "

// Record is one element of the persisted conversation log. The field order
// below is the key order of the JSON document.
type Record struct {
	Role             Role           `json:"role"`
	Content          string         `json:"content,omitempty"`
	ContentRaw       string         `json:"content_raw,omitempty"`
	ContentUI        string         `json:"content_ui,omitempty"`
	ContentTTS       string         `json:"content_tts,omitempty"`
	Expression       *emotion.Label `json:"expression,omitempty"`
	Timestamp        string         `json:"timestamp,omitempty"`
	PromptTokens     *int           `json:"prompt_tokens,omitempty"`
	CompletionTokens *int           `json:"completion_tokens,omitempty"`
	CompletionTime   *float64       `json:"completion_time,omitempty"`
}

// SystemRecord builds a system turn (persona preamble or error annotation).
func SystemRecord(content string) Record {
	return Record{Role: RoleSystem, Content: content}
}

// ErrorRecord builds the auditable annotation appended when generation fails.
func ErrorRecord(detail string) Record {
	return SystemRecord(ErrorPrefix + detail)
}

// UserRecord builds a user turn stamped with at.
func UserRecord(content string, at time.Time) Record {
	return Record{Role: RoleUser, Content: content, Timestamp: at.Format(TimestampLayout)}
}

// IsError reports whether the record is a system error annotation.
func (r Record) IsError() bool {
	return r.Role == RoleSystem && len(r.Content) >= len(ErrorPrefix) && r.Content[:len(ErrorPrefix)] == ErrorPrefix
}

// Text returns what the model sees for this record: assistant turns are
// replayed from their unedited output.
func (r Record) Text() string {
	if r.Role == RoleAssistant {
		return r.ContentRaw
	}
	return r.Content
}
