package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona captures the role-playing attributes used to build the system preamble.
type Persona struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Language    string   `json:"language" yaml:"language"`
	Tone        string   `json:"tone,omitempty" yaml:"tone,omitempty"`
	Prompt      string   `json:"prompt" yaml:"prompt"`
	Rules       []string `json:"rules,omitempty" yaml:"rules,omitempty"`
	OpeningLine string   `json:"openingLine,omitempty" yaml:"opening_line,omitempty"`
	VoiceID     string   `json:"voiceId,omitempty" yaml:"voice_id,omitempty"`
	Traits      []string `json:"traits,omitempty" yaml:"traits,omitempty"`
}

// DefaultID 是未配置 PERSONA_ID 时使用的角色。
const DefaultID = "marc"

// Seed provides the built-in personas.
func Seed() []Persona {
	return []Persona{
		{
			ID:       "marc",
			Name:     "Marc",
			Title:    "chico joven",
			Language: "es",
			Tone:     "natural, relajado",
			Prompt: "Eres Marc, un chico joven. Hablas de manera natural y relajada, como si estuvieras charlando con un amigo. " +
				"Mantén tus respuestas breves, de una o dos frases, pero completas y descriptivas como haciendo roleplay. Responde siempre en castellano. " +
				"La única regla es que todas tus acciones físicas o emociones deben ir entre asteriscos, de forma descriptiva. " +
				"Por ejemplo: *(levanta una ceja, curioso.)* o *(se apoya en la pared, cruzando los brazos)*. " +
				"No uses ningún otro tipo de formato o símbolos especiales. " +
				"Mantente siempre en el personaje.",
			OpeningLine: "*(se sienta a tu lado)* ¿Qué tal, cómo va todo?",
			Traits:      []string{"cercano", "curioso", "bromista"},
		},
		{
			ID:       "ava",
			Name:     "Ava",
			Title:    "late-night radio host",
			Language: "en",
			Tone:     "warm, wry",
			Prompt: "You are Ava, a late-night radio host chatting with a caller. Keep every answer to one or two short sentences. " +
				"Put every physical action or feeling between single asterisks, for example *(leans into the mic)*. " +
				"Do not use any other formatting. Never break character.",
			OpeningLine: "*(adjusts headphones)* You're on the air, go ahead.",
			Traits:      []string{"warm", "witty", "patient"},
		},
	}
}

// Validate checks the fields required to build a preamble.
func (p Persona) Validate() error {
	var missing []string
	if strings.TrimSpace(p.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("persona %q missing %s", p.ID, strings.Join(missing, ", "))
	}
	return nil
}

type fileDocument struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile 从 YAML 文件读取角色列表，格式为顶层 personas 数组。
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML persona document.
func Parse(data []byte) ([]Persona, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode persona yaml: %w", err)
	}
	if len(doc.Personas) == 0 {
		return nil, errors.New("persona file declares no personas")
	}

	seen := make(map[string]struct{}, len(doc.Personas))
	for _, p := range doc.Personas {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return doc.Personas, nil
}
