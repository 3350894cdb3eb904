// Package provider resolves the configured provider names into concrete
// implementations of the turn ports.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/service/ai"
	"github.com/zhouzirui/z-voice/internal/service/speech"
	"github.com/zhouzirui/z-voice/internal/service/turn"
)

var (
	// ErrUnknownProvider is returned for a name no implementation answers to.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingCredential is returned when the selected provider has no key.
	ErrMissingCredential = errors.New("missing provider credential")
)

// 可选的供应商名称，按端口区分。
var (
	GenerationProviders    = []string{"groq", "openrouter", "openai", "anthropic", "gemini", "ark"}
	SynthesisProviders     = []string{"google", "minimax", "openai", "volcengine", "none"}
	TranscriptionProviders = []string{"groq", "openai", "volcengine"}
)

// openRouterTemperature 是未显式配置时 OpenRouter 使用的采样温度。
const openRouterTemperature = 0.7

// Registry builds providers from one configuration snapshot.
type Registry struct {
	cfg   *config.Config
	voice string
}

// NewRegistry creates a registry; voice is the persona voice id, used by
// synthesizers that accept one.
func NewRegistry(cfg *config.Config, voice string) *Registry {
	return &Registry{cfg: cfg, voice: strings.TrimSpace(voice)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func missing(provider, variable string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMissingCredential, provider, variable)
}

func unknown(port, name string, known []string) error {
	return fmt.Errorf("%w: %s provider %q (expected one of %s)", ErrUnknownProvider, port, name, strings.Join(known, ", "))
}

func (r *Registry) generationOptions() ai.Options {
	return ai.Options{MaxTokens: r.cfg.LLM.MaxTokens, Temperature: r.cfg.LLM.Temperature}
}

// Generation returns the generator registered under name.
func (r *Registry) Generation(ctx context.Context, name string) (turn.Generator, error) {
	opts := r.generationOptions()

	switch normalize(name) {
	case "groq":
		if r.cfg.Groq.APIKey == "" {
			return nil, missing("groq", "GROQ_API_KEY")
		}
		return ai.NewOpenAIGenerator("groq", r.cfg.Groq, opts), nil

	case "openrouter":
		if r.cfg.OpenRouter.APIKey == "" {
			return nil, missing("openrouter", "OPENROUTER_API_KEY")
		}
		if opts.Temperature == nil {
			t := openRouterTemperature
			opts.Temperature = &t
		}
		return ai.NewOpenAIGenerator("openrouter", r.cfg.OpenRouter, opts), nil

	case "openai":
		if r.cfg.OpenAI.APIKey == "" {
			return nil, missing("openai", "OPENAI_API_KEY")
		}
		return ai.NewOpenAIGenerator("openai", r.cfg.OpenAI.OpenAICompatConfig, opts), nil

	case "anthropic":
		if r.cfg.Anthropic.APIKey == "" {
			return nil, missing("anthropic", "ANTHROPIC_API_KEY")
		}
		return ai.NewAnthropicGenerator(r.cfg.Anthropic, opts), nil

	case "gemini":
		if r.cfg.Gemini.APIKey == "" {
			return nil, missing("gemini", "GEMINI_API_KEY")
		}
		gen, err := ai.NewGeminiGenerator(ctx, r.cfg.Gemini, opts, "")
		if err != nil {
			return nil, err
		}
		return gen, nil

	case "ark":
		if !r.cfg.AI.Enabled() {
			return nil, missing("ark", "ARK_API_KEY and ARK_MODEL")
		}
		gen, err := ai.NewArkGenerator(ctx, r.cfg.AI)
		if err != nil {
			return nil, err
		}
		return gen, nil

	default:
		return nil, unknown("generation", name, GenerationProviders)
	}
}

// Synthesis returns the synthesizer registered under name. "none" yields a
// nil synthesizer and no error.
func (r *Registry) Synthesis(ctx context.Context, name string) (turn.Synthesizer, error) {
	switch normalize(name) {
	case "none", "off", "disabled":
		return nil, nil

	case "google":
		synth, err := speech.NewGoogleSynthesizer(ctx, r.cfg.GoogleTTS)
		if err != nil {
			return nil, fmt.Errorf("%w: google tts needs GOOGLE_TTS_API_KEY or application default credentials: %v", ErrMissingCredential, err)
		}
		return synth, nil

	case "minimax":
		if r.cfg.MiniMax.APIKey == "" {
			return nil, missing("minimax", "MINIMAX_API_KEY")
		}
		return speech.NewMiniMaxSynthesizer(r.cfg.MiniMax, time.Duration(r.cfg.TTS.Timeout)*time.Second), nil

	case "openai":
		if r.cfg.OpenAI.APIKey == "" {
			return nil, missing("openai", "OPENAI_API_KEY")
		}
		return speech.NewOpenAISynthesizer(r.cfg.OpenAI), nil

	case "volcengine":
		if !r.cfg.Speech.Enabled {
			return nil, missing("volcengine", "SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
		}
		return speech.NewVolcengineSynthesizer(r.cfg.Speech, r.voice), nil

	default:
		return nil, unknown("synthesis", name, SynthesisProviders)
	}
}

// Transcription returns the transcriber registered under name.
func (r *Registry) Transcription(name string) (turn.Transcriber, error) {
	switch normalize(name) {
	case "groq":
		if r.cfg.Groq.APIKey == "" {
			return nil, missing("groq", "GROQ_API_KEY")
		}
		return speech.NewWhisperTranscriber("groq", r.cfg.Groq, r.cfg.LLM.Language), nil

	case "openai":
		if r.cfg.OpenAI.APIKey == "" {
			return nil, missing("openai", "OPENAI_API_KEY")
		}
		return speech.NewWhisperTranscriber("openai", r.cfg.OpenAI.OpenAICompatConfig, r.cfg.LLM.Language), nil

	case "volcengine":
		if !r.cfg.Speech.Enabled {
			return nil, missing("volcengine", "SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
		}
		return speech.NewVolcengineTranscriber(r.cfg.Speech), nil

	default:
		return nil, unknown("transcription", name, TranscriptionProviders)
	}
}

// Set is the resolved trio for one session.
type Set struct {
	Transcriber turn.Transcriber
	Generator   turn.Generator
	Synthesizer turn.Synthesizer
}

// Build resolves the providers named in the configuration. Any error is a
// startup failure.
func (r *Registry) Build(ctx context.Context) (*Set, error) {
	names := r.cfg.Providers

	transcriber, err := r.Transcription(names.STT)
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}
	generator, err := r.Generation(ctx, names.LLM)
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	synthesizer, err := r.Synthesis(ctx, names.TTS)
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}

	logger.Info("providers selected", "stt", names.STT, "llm", names.LLM, "tts", names.TTS)
	return &Set{Transcriber: transcriber, Generator: generator, Synthesizer: synthesizer}, nil
}
