package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-voice/internal/analysis/emotion"
	"github.com/zhouzirui/z-voice/internal/model/persona"
)

// PromptTemplate holds the language-specific framing of the preamble.
type PromptTemplate struct {
	RulesHeader       string
	ExpressionRule    string
	OpeningLineHeader string
}

// PersonaPromptManager builds the system preamble placed at element 0 of
// every conversation log.
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
	fallback  string
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
		fallback:  "en",
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the template for a language code such as "es" or "es-ES".
func (pm *PersonaPromptManager) GetPromptTemplate(language string) (*PromptTemplate, error) {
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	template, exists := pm.templates[lang]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for language: %s", language)
	}
	return template, nil
}

// BuildSystemPrompt combines the persona prompt, its extra rules and the
// instruction to close every answer with one expression label.
func (pm *PersonaPromptManager) BuildSystemPrompt(p persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.Language)
	if err != nil {
		template = pm.templates[pm.fallback]
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Prompt))

	if len(p.Rules) > 0 {
		b.WriteString("\n\n")
		b.WriteString(template.RulesHeader)
		for _, rule := range p.Rules {
			b.WriteString("\n- ")
			b.WriteString(rule)
		}
	}

	labels := make([]string, 0, len(emotion.Labels()))
	for _, label := range emotion.Labels() {
		labels = append(labels, string(label))
	}
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf(template.ExpressionRule, strings.Join(labels, ", ")))

	if p.OpeningLine != "" {
		b.WriteString("\n\n")
		b.WriteString(template.OpeningLineHeader)
		b.WriteString(p.OpeningLine)
	}
	return b.String()
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates["es"] = &PromptTemplate{
		RulesHeader:       "Reglas adicionales:",
		ExpressionRule:    "Termina siempre tu respuesta con exactamente una de estas palabras, sola y al final, que describa tu emoción: %s.",
		OpeningLineHeader: "Frase de bienvenida de referencia: ",
	}
	pm.templates["en"] = &PromptTemplate{
		RulesHeader:       "Additional rules:",
		ExpressionRule:    "Always end your answer with exactly one of these words, alone at the very end, describing your emotion: %s.",
		OpeningLineHeader: "Reference opening line: ",
	}
	pm.templates["zh"] = &PromptTemplate{
		RulesHeader:       "对话规则：",
		ExpressionRule:    "每次回复的最末尾必须单独附上以下英文标签之一来表示你的情绪：%s。",
		OpeningLineHeader: "欢迎词参考：",
	}
}
