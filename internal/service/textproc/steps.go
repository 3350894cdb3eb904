package textproc

import (
	"regexp"
	"strings"
	"unicode"
)

// Step is one named pure rewrite in a cleaning pipeline.
type Step struct {
	Name  string
	Apply func(string) string
}

// Pipeline applies its steps in order.
type Pipeline []Step

// Run feeds s through every step.
func (p Pipeline) Run(s string) string {
	for _, step := range p {
		s = step.Apply(s)
	}
	return s
}

// Names lists the step names in execution order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, step := range p {
		names[i] = step.Name
	}
	return names
}

var (
	fencedCodePattern     = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern     = regexp.MustCompile("`[^`]*`")
	imagePattern          = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	linkPattern           = regexp.MustCompile(`\[([^\[\]]*)\]\([^)]*\)`)
	boldPattern           = regexp.MustCompile(`\*\*(.+?)\*\*`)
	stageDirectionPattern = regexp.MustCompile(`\s?\*[^*\n]+\*\.?\s?`)
	listMarkerPattern     = regexp.MustCompile(`(?m)^\s*[-*#]+\s*`)
	whitespacePattern     = regexp.MustCompile(`\s+`)
)

// 语音合成保留的标点，其余非字母数字字符全部丢弃。
const speechPunctuation = ".,¡!¿?'’"

func replaceWith(re *regexp.Regexp, repl string) func(string) string {
	return func(s string) string { return re.ReplaceAllString(s, repl) }
}

// unwrapLinks 由内向外展开嵌套链接，直到不再匹配。
func unwrapLinks(s string) string {
	for linkPattern.MatchString(s) {
		s = linkPattern.ReplaceAllString(s, "$1")
	}
	return s
}

var (
	StripFencedCode      = Step{Name: "strip_fenced_code", Apply: replaceWith(fencedCodePattern, "")}
	StripInlineCode      = Step{Name: "strip_inline_code", Apply: replaceWith(inlineCodePattern, "")}
	StripImages          = Step{Name: "strip_images", Apply: replaceWith(imagePattern, "")}
	UnwrapLinks          = Step{Name: "unwrap_links", Apply: unwrapLinks}
	CollapseBold         = Step{Name: "collapse_bold", Apply: replaceWith(boldPattern, "$1")}
	StripStageDirections = Step{Name: "strip_stage_directions", Apply: replaceWith(stageDirectionPattern, " ")}
	StripListMarkers     = Step{Name: "strip_list_markers", Apply: replaceWith(listMarkerPattern, "")}
	DropSymbols          = Step{Name: "drop_symbols", Apply: dropSymbols}
	CollapseWhitespace   = Step{Name: "collapse_whitespace", Apply: replaceWith(whitespacePattern, " ")}
	Trim                 = Step{Name: "trim", Apply: strings.TrimSpace}
)

func dropSymbols(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		case strings.ContainsRune(speechPunctuation, r):
			return r
		default:
			return -1
		}
	}, s)
}

// UISteps returns the display pipeline. Emphasis markers survive it.
func UISteps() Pipeline {
	return Pipeline{
		StripFencedCode,
		StripInlineCode,
		StripImages,
		UnwrapLinks,
		Trim,
	}
}

// SpeechSteps returns the synthesis pipeline.
// Bold is collapsed before stage directions are removed so that a
// "**word**" pair is never read as two empty single-asterisk spans.
func SpeechSteps() Pipeline {
	return Pipeline{
		StripFencedCode,
		StripInlineCode,
		StripImages,
		UnwrapLinks,
		CollapseBold,
		StripStageDirections,
		StripListMarkers,
		DropSymbols,
		CollapseWhitespace,
		Trim,
	}
}
