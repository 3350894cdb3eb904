package turn

import (
	"fmt"

	"github.com/zhouzirui/z-voice/internal/analysis/emotion"
)

// ErrorKind classifies a failed turn.
type ErrorKind string

const (
	KindTranscription ErrorKind = "transcription"
	KindGeneration    ErrorKind = "generation"
)

// 面向用户的固定提示，与内部错误细节分开。
const (
	MessageTranscriptionFailed = "Could not understand the audio."
	MessageGenerationFailed    = "Could not generate a response."
	messageGenerationRetry     = "Could not generate a response. Please try again."
)

// TurnError is the user-visible failure of a turn.
type TurnError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Kind, e.Message)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// Result is what the surface renders after a turn.
type Result struct {
	Turn        int            `json:"turn"`
	UserText    string         `json:"user_text,omitempty"`
	UIText      string         `json:"ui_text,omitempty"`
	TTSText     string         `json:"tts_text,omitempty"`
	Expression  *emotion.Label `json:"expression"`
	Audio       []byte         `json:"-"`
	AudioFormat string         `json:"audio_format,omitempty"`
	AudioPath   string         `json:"audio_path,omitempty"`
	Error       *TurnError     `json:"error,omitempty"`

	// PersistErr is set when the log could not be flushed; the reply is kept.
	PersistErr error `json:"-"`
}

// Failed reports whether the turn ended in Failed.
func (r *Result) Failed() bool {
	return r != nil && r.Error != nil
}

// HasAudio reports whether synthesized audio is attached.
func (r *Result) HasAudio() bool {
	return r != nil && len(r.Audio) > 0
}
