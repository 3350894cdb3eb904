package ai

import (
	"strings"
	"testing"

	"github.com/zhouzirui/z-voice/internal/analysis/emotion"
	"github.com/zhouzirui/z-voice/internal/model/persona"
)

func TestBuildSystemPromptSpanish(t *testing.T) {
	manager := NewPersonaPromptManager()
	p := persona.Seed()[0]
	p.Rules = []string{"No hables de política."}

	prompt := manager.BuildSystemPrompt(p)

	if !strings.HasPrefix(prompt, "Eres Marc") {
		t.Fatalf("expected persona prompt first, got %q", prompt[:20])
	}
	if !strings.Contains(prompt, "Reglas adicionales:\n- No hables de política.") {
		t.Fatalf("expected rules section in prompt")
	}
	for _, label := range emotion.Labels() {
		if !strings.Contains(prompt, string(label)) {
			t.Fatalf("expected label %s in prompt", label)
		}
	}
}

func TestBuildSystemPromptFallsBackToEnglish(t *testing.T) {
	manager := NewPersonaPromptManager()
	prompt := manager.BuildSystemPrompt(persona.Persona{ID: "x", Name: "X", Language: "fr-FR", Prompt: "Tu es X."})

	if !strings.Contains(prompt, "Always end your answer") {
		t.Fatalf("expected english template fallback, got %q", prompt)
	}
	if strings.Contains(prompt, "Additional rules") {
		t.Fatalf("rules header must be omitted when persona has no rules")
	}
}

func TestGetPromptTemplateNormalizesLanguage(t *testing.T) {
	manager := NewPersonaPromptManager()
	for _, lang := range []string{"es", "ES", "es-ES", "es_MX"} {
		if _, err := manager.GetPromptTemplate(lang); err != nil {
			t.Fatalf("GetPromptTemplate(%q) err: %v", lang, err)
		}
	}
	if _, err := manager.GetPromptTemplate("de"); err == nil {
		t.Fatal("expected error for unknown language")
	}
}
