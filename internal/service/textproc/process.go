// Package textproc turns raw model output into a display rendering, a speech
// rendering and an optional expression label.
package textproc

import (
	"strings"

	"github.com/zhouzirui/z-voice/internal/analysis/emotion"
)

// Result is the outcome of Process.
type Result struct {
	UI         string
	TTS        string
	Expression *emotion.Label // nil when no trailing label was found
}

var (
	uiPipeline     = UISteps()
	speechPipeline = SpeechSteps()
)

// Process is pure and total: any input yields a Result.
func Process(raw string) Result {
	working, expression := ExtractExpression(raw)
	return Result{
		UI:         uiPipeline.Run(working),
		TTS:        speechPipeline.Run(working),
		Expression: expression,
	}
}

// ExtractExpression trims raw and, if it ends with a known label, returns the
// text without that label. Labels are tried in enumeration order and matching
// is case-sensitive.
func ExtractExpression(raw string) (string, *emotion.Label) {
	trimmed := strings.TrimSpace(raw)
	for _, label := range emotion.Labels() {
		if strings.HasSuffix(trimmed, string(label)) {
			rest := strings.TrimSpace(strings.TrimSuffix(trimmed, string(label)))
			found := label
			return rest, &found
		}
	}
	return trimmed, nil
}
