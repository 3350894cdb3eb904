package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/service/ai"
	"github.com/zhouzirui/z-voice/internal/service/speech"
)

func fullConfig() *config.Config {
	return &config.Config{
		Providers:  config.ProviderConfig{LLM: "groq", STT: "groq", TTS: "minimax"},
		LLM:        config.LLMConfig{MaxTokens: 500, Language: "es"},
		Groq:       config.OpenAICompatConfig{APIKey: "gsk", BaseURL: "https://api.groq.com/openai/v1", Model: "m", TranscriptionModel: "whisper-large-v3"},
		OpenRouter: config.OpenAICompatConfig{APIKey: "or", BaseURL: "https://openrouter.ai/api/v1", Model: "m"},
		OpenAI: config.OpenAIConfig{
			OpenAICompatConfig: config.OpenAICompatConfig{APIKey: "sk", Model: "gpt-4o-mini", TranscriptionModel: "whisper-1"},
			TTSModel:           "gpt-4o-mini-tts",
			TTSVoice:           "alloy",
		},
		Anthropic: config.AnthropicConfig{APIKey: "ant", Model: "claude"},
		Gemini:    config.GeminiConfig{APIKey: "gem", Model: "gemini-2.5-flash"},
		GoogleTTS: config.GoogleTTSConfig{APIKey: "gtts", VoiceName: "es-ES-Chirp3-HD-Algenib", LanguageCode: "es-ES"},
		MiniMax:   config.MiniMaxConfig{APIKey: "mm", BaseURL: "https://api.minimax.io/v1/t2a_v2", Model: "speech-02-hd", VoiceID: "v"},
		Speech:    config.SpeechConfig{AppID: "app", AccessToken: "tok", Enabled: true},
		TTS:       config.TTSConfig{MaxChars: 1500, Timeout: 30},
	}
}

func TestGenerationProviders(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(fullConfig(), "")

	for _, name := range []string{"groq", "openrouter", "openai", "GROQ "} {
		gen, err := reg.Generation(ctx, name)
		require.NoError(t, err, name)
		assert.IsType(t, &ai.OpenAIGenerator{}, gen)
	}

	gen, err := reg.Generation(ctx, "anthropic")
	require.NoError(t, err)
	assert.IsType(t, &ai.AnthropicGenerator{}, gen)

	gen, err = reg.Generation(ctx, "gemini")
	require.NoError(t, err)
	assert.IsType(t, &ai.GeminiGenerator{}, gen)
}

func TestSynthesisProviders(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(fullConfig(), "persona-voice")

	cases := map[string]any{
		"google":     &speech.GoogleSynthesizer{},
		"minimax":    &speech.MiniMaxSynthesizer{},
		"openai":     &speech.OpenAISynthesizer{},
		"volcengine": &speech.VolcengineSynthesizer{},
	}
	for name, want := range cases {
		synth, err := reg.Synthesis(ctx, name)
		require.NoError(t, err, name)
		assert.IsType(t, want, synth, name)
	}

	synth, err := reg.Synthesis(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, synth)
}

func TestTranscriptionProviders(t *testing.T) {
	reg := NewRegistry(fullConfig(), "")

	for _, name := range []string{"groq", "openai"} {
		stt, err := reg.Transcription(name)
		require.NoError(t, err)
		assert.IsType(t, &speech.WhisperTranscriber{}, stt)
	}
	stt, err := reg.Transcription("volcengine")
	require.NoError(t, err)
	assert.IsType(t, &speech.VolcengineTranscriber{}, stt)
}

func TestUnknownProvider(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(fullConfig(), "")

	_, err := reg.Generation(ctx, "llama-local")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	_, err = reg.Synthesis(ctx, "espeak")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	_, err = reg.Transcription("")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestMissingCredential(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{LLM: config.LLMConfig{MaxTokens: 500}}
	reg := NewRegistry(cfg, "")

	for _, name := range GenerationProviders {
		_, err := reg.Generation(ctx, name)
		assert.ErrorIs(t, err, ErrMissingCredential, name)
	}
	for _, name := range []string{"minimax", "openai", "volcengine"} {
		_, err := reg.Synthesis(ctx, name)
		assert.ErrorIs(t, err, ErrMissingCredential, name)
	}
	for _, name := range TranscriptionProviders {
		_, err := reg.Transcription(name)
		assert.ErrorIs(t, err, ErrMissingCredential, name)
	}
}

func TestBuild(t *testing.T) {
	set, err := NewRegistry(fullConfig(), "").Build(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, set.Transcriber)
	assert.NotNil(t, set.Generator)
	assert.IsType(t, &speech.MiniMaxSynthesizer{}, set.Synthesizer)

	cfg := fullConfig()
	cfg.Providers.LLM = "mystery"
	_, err = NewRegistry(cfg, "").Build(context.Background())
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.ErrorContains(t, err, "generation")
}
