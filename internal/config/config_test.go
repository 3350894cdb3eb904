package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LLM_PROVIDER", "STT_PROVIDER", "TTS_PROVIDER", "LLM_MAX_TOKENS",
		"LLM_TEMPERATURE", "TTS_MAX_CHARS", "CONVERSATIONS_DIR", "AUDIO_SAMPLE_RATE",
		"GROQ_LLM_MODEL", "GOOGLE_TTS_VOICE", "ARK_MODEL", "Model", "CONVERSATION_RESUME",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderConfig{LLM: "groq", STT: "groq", TTS: "google"}, cfg.Providers)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.Nil(t, cfg.LLM.Temperature)
	assert.Equal(t, 1500, cfg.TTS.MaxChars)
	assert.Equal(t, "conversations", cfg.Conversation.Dir)
	assert.Equal(t, 16000, cfg.Conversation.SampleRate)
	assert.Empty(t, cfg.Conversation.Resume)
	assert.Equal(t, "openai/gpt-oss-120b", cfg.Groq.Model)
	assert.Equal(t, "whisper-large-v3", cfg.Groq.TranscriptionModel)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, "es-ES-Chirp3-HD-Algenib", cfg.GoogleTTS.VoiceName)
	assert.False(t, cfg.AI.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("LLM_PROVIDER", "OpenRouter")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("TTS_MAX_CHARS", "200")
	t.Setenv("ARK_API_KEY", "ark-key")
	t.Setenv("ARK_MODEL", "doubao-pro")
	t.Setenv("CONVERSATION_RESUME", " conversations/2025-03-14_09-26-53 ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "openrouter", cfg.Providers.LLM)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.7, *cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 200, cfg.TTS.MaxChars)
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, "conversations/2025-03-14_09-26-53", cfg.Conversation.Resume)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":             "80 80",
		"LLM_MAX_TOKENS":   "lots",
		"TTS_MAX_CHARS":    "-1",
		"LLM_TEMPERATURE":  "warm",
		"SPEECH_TTS_SPEED": "fast",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
