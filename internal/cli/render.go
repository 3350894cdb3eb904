package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/z-voice/internal/model/chat"
	"github.com/zhouzirui/z-voice/internal/service/turn"
)

var (
	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#10B981"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EF4444"))

	expressionStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#F59E0B"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// Renderer prints records and turn results to a terminal.
type Renderer struct {
	out io.Writer
	md  *glamour.TermRenderer
}

// NewRenderer builds a renderer; plain disables terminal styling of the
// markdown body, which keeps output stable when piped.
func NewRenderer(out io.Writer, plain bool) (*Renderer, error) {
	style := glamour.WithAutoStyle()
	if plain {
		style = glamour.WithStandardStyle("notty")
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &Renderer{out: out, md: md}, nil
}

func (r *Renderer) markdown(text string) string {
	rendered, err := r.md.Render(text)
	if err != nil {
		return text + "\n"
	}
	return rendered
}

// Record prints one log element. The preamble is abbreviated.
func (r *Renderer) Record(index int, rec chat.Record) {
	prefix := dimStyle.Render(fmt.Sprintf("#%d", index))

	switch {
	case rec.IsError():
		fmt.Fprintf(r.out, "%s %s\n", prefix, errorStyle.Render(rec.Content))
	case rec.Role == chat.RoleSystem:
		fmt.Fprintf(r.out, "%s %s %s\n", prefix, systemStyle.Render("system"), dimStyle.Render(abbreviate(rec.Content, 72)))
	case rec.Role == chat.RoleUser:
		fmt.Fprintf(r.out, "%s %s %s%s\n", prefix, userStyle.Render("user"), rec.Content, usageSuffix(rec))
	case rec.Role == chat.RoleAssistant:
		fmt.Fprintf(r.out, "%s %s%s%s\n", prefix, assistantStyle.Render("assistant"), expressionSuffix(rec), usageSuffix(rec))
		fmt.Fprint(r.out, r.markdown(rec.ContentUI))
	default:
		fmt.Fprintf(r.out, "%s %s %s\n", prefix, string(rec.Role), rec.Text())
	}
}

// Result prints the outcome of a live turn.
func (r *Renderer) Result(res *turn.Result) {
	header := dimStyle.Render(fmt.Sprintf("turn %d", res.Turn))
	if res.UserText != "" {
		fmt.Fprintf(r.out, "%s %s %s\n", header, userStyle.Render("user"), res.UserText)
	}
	if res.Failed() {
		fmt.Fprintf(r.out, "%s %s\n", header, errorStyle.Render(res.Error.Message))
		return
	}

	label := ""
	if res.Expression != nil {
		label = " " + expressionStyle.Render("["+string(*res.Expression)+"]")
	}
	fmt.Fprintf(r.out, "%s %s%s\n", header, assistantStyle.Render("assistant"), label)
	fmt.Fprint(r.out, r.markdown(res.UIText))
	if res.AudioPath != "" {
		fmt.Fprintf(r.out, "%s\n", dimStyle.Render("audio: "+res.AudioPath))
	}
}

func expressionSuffix(rec chat.Record) string {
	if rec.Expression == nil {
		return ""
	}
	return " " + expressionStyle.Render("["+string(*rec.Expression)+"]")
}

func usageSuffix(rec chat.Record) string {
	var parts []string
	if rec.PromptTokens != nil {
		parts = append(parts, fmt.Sprintf("prompt=%d", *rec.PromptTokens))
	}
	if rec.CompletionTokens != nil {
		parts = append(parts, fmt.Sprintf("completion=%d", *rec.CompletionTokens))
	}
	if rec.CompletionTime != nil {
		parts = append(parts, fmt.Sprintf("%.2fs", *rec.CompletionTime))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + dimStyle.Render("("+strings.Join(parts, " ")+")")
}

func abbreviate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
