package chat

import "errors"

// ErrEmptyCompletion marks a generation that returned blank text.
var ErrEmptyCompletion = errors.New("empty response content")

// Message 是生成端口的输入形状。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage 汇总不同供应商返回的用量信息，缺失字段为 nil。
type Usage struct {
	PromptTokens     *int     `json:"prompt_tokens,omitempty"`
	CompletionTokens *int     `json:"completion_tokens,omitempty"`
	CompletionTime   *float64 `json:"completion_time,omitempty"`
}

// Completion is the normalized result of a generation call.
type Completion struct {
	Text  string
	Usage *Usage
}

// IntPtr is a small helper for populating optional usage counters.
func IntPtr(v int) *int { return &v }

// FloatPtr is the float64 counterpart of IntPtr.
func FloatPtr(v float64) *float64 { return &v }
