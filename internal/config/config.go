package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项，在进程启动时构建一次并向下传递。
type Config struct {
	Server       ServerConfig
	Conversation ConversationConfig
	Providers    ProviderConfig
	LLM          LLMConfig
	Groq         OpenAICompatConfig
	OpenRouter   OpenAICompatConfig
	OpenAI       OpenAIConfig
	Anthropic    AnthropicConfig
	Gemini       GeminiConfig
	AI           AIConfig
	GoogleTTS    GoogleTTSConfig
	MiniMax      MiniMaxConfig
	Speech       SpeechConfig
	TTS          TTSConfig
	Log          LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	conversation, err := loadConversationConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	tts, err := loadTTSConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:       server,
		Conversation: conversation,
		Providers:    loadProviderConfig(),
		LLM:          llm,
		Groq: OpenAICompatConfig{
			APIKey:             strings.TrimSpace(os.Getenv("GROQ_API_KEY")),
			BaseURL:            getEnvOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:              getEnvOrDefault("GROQ_LLM_MODEL", "openai/gpt-oss-120b"),
			TranscriptionModel: getEnvOrDefault("GROQ_TRANSCRIPTION_MODEL", "whisper-large-v3"),
		},
		OpenRouter: OpenAICompatConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
			BaseURL: getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Model:   getEnvOrDefault("OPENROUTER_LLM_MODEL", "openai/gpt-oss-120b"),
		},
		OpenAI: OpenAIConfig{
			OpenAICompatConfig: OpenAICompatConfig{
				APIKey:             strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
				BaseURL:            strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
				Model:              getEnvOrDefault("OPENAI_LLM_MODEL", "gpt-4o-mini"),
				TranscriptionModel: getEnvOrDefault("OPENAI_TRANSCRIPTION_MODEL", "whisper-1"),
			},
			TTSModel: getEnvOrDefault("OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
			TTSVoice: getEnvOrDefault("OPENAI_TTS_VOICE", "alloy"),
		},
		Anthropic: AnthropicConfig{
			APIKey: strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			Model:  getEnvOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		},
		Gemini: GeminiConfig{
			APIKey: firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		AI: ai,
		GoogleTTS: GoogleTTSConfig{
			APIKey:       strings.TrimSpace(os.Getenv("GOOGLE_TTS_API_KEY")),
			VoiceName:    getEnvOrDefault("GOOGLE_TTS_VOICE", "es-ES-Chirp3-HD-Algenib"),
			LanguageCode: getEnvOrDefault("GOOGLE_TTS_LANGUAGE", "es-ES"),
		},
		MiniMax: MiniMaxConfig{
			APIKey:  strings.TrimSpace(os.Getenv("MINIMAX_API_KEY")),
			BaseURL: getEnvOrDefault("MINIMAX_BASE_URL", "https://api.minimax.io/v1/t2a_v2"),
			Model:   getEnvOrDefault("MINIMAX_MODEL", "speech-02-hd"),
			VoiceID: getEnvOrDefault("MINIMAX_VOICE_ID", "male-qn-qingse"),
		},
		Speech: speech,
		TTS:    tts,
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
			File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// ConversationConfig 描述会话目录与录音格式。
type ConversationConfig struct {
	Dir         string
	SampleRate  int
	Channels    int
	PersonaID   string
	PersonaFile string
	// Resume 非空时继续该目录下的会话，而不是新建
	Resume string
}

func loadConversationConfig() (ConversationConfig, error) {
	rate, err := parsePositiveIntEnv("AUDIO_SAMPLE_RATE", 16000)
	if err != nil {
		return ConversationConfig{}, err
	}
	channels, err := parsePositiveIntEnv("AUDIO_CHANNELS", 1)
	if err != nil {
		return ConversationConfig{}, err
	}

	return ConversationConfig{
		Dir:         getEnvOrDefault("CONVERSATIONS_DIR", "conversations"),
		SampleRate:  rate,
		Channels:    channels,
		PersonaID:   getEnvOrDefault("PERSONA_ID", "marc"),
		PersonaFile: strings.TrimSpace(os.Getenv("PERSONA_FILE")),
		Resume:      strings.TrimSpace(os.Getenv("CONVERSATION_RESUME")),
	}, nil
}

// ProviderConfig 选择三个端口各自的实现。
type ProviderConfig struct {
	LLM string
	STT string
	TTS string
}

func loadProviderConfig() ProviderConfig {
	return ProviderConfig{
		LLM: strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "groq")),
		STT: strings.ToLower(getEnvOrDefault("STT_PROVIDER", "groq")),
		TTS: strings.ToLower(getEnvOrDefault("TTS_PROVIDER", "google")),
	}
}

// LLMConfig 是所有生成供应商共享的采样参数。
type LLMConfig struct {
	MaxTokens   int
	Temperature *float64
	Language    string
}

func loadLLMConfig() (LLMConfig, error) {
	maxTokens, err := parsePositiveIntEnv("LLM_MAX_TOKENS", 500)
	if err != nil {
		return LLMConfig{}, err
	}
	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}
	return LLMConfig{
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Language:    getEnvOrDefault("TRANSCRIPTION_LANGUAGE", "es"),
	}, nil
}

// OpenAICompatConfig covers providers reachable through the OpenAI wire format.
type OpenAICompatConfig struct {
	APIKey             string
	BaseURL            string
	Model              string
	TranscriptionModel string
}

// OpenAIConfig adds the speech endpoint settings.
type OpenAIConfig struct {
	OpenAICompatConfig
	TTSModel string
	TTSVoice string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

// GoogleTTSConfig 为空 APIKey 时使用 Application Default Credentials。
type GoogleTTSConfig struct {
	APIKey       string
	VoiceName    string
	LanguageCode string
}

type MiniMaxConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	VoiceID string
}

// TTSConfig 限制送入合成端口的文本长度（按字符计）。
type TTSConfig struct {
	MaxChars int
	Timeout  int
}

func loadTTSConfig() (TTSConfig, error) {
	maxChars, err := parsePositiveIntEnv("TTS_MAX_CHARS", 1500)
	if err != nil {
		return TTSConfig{}, err
	}
	timeout, err := parsePositiveIntEnv("TTS_TIMEOUT", 30)
	if err != nil {
		return TTSConfig{}, err
	}
	return TTSConfig{MaxChars: maxChars, Timeout: timeout}, nil
}

type LogConfig struct {
	Level string
	File  string
}

// AIConfig 描述火山方舟大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// SpeechConfig 描述火山引擎语音服务相关配置
type SpeechConfig struct {
	AppID       string
	AccessToken string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Region      string
	BaseURL     string
	ASRModel    string
	ASRLanguage string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string
	Timeout     int
	Enabled     bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       firstNonEmpty(os.Getenv("ARK_MODEL"), os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	// 解析TTS速度和音量
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	accessKey := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("SPEECH_SECRET_KEY"))

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		APIKey:      apiKey,
		AccessKey:   accessKey,
		SecretKey:   secretKey,
		Region:      getEnvOrDefault("SPEECH_REGION", "cn-beijing"),
		BaseURL:     getEnvOrDefault("SPEECH_BASE_URL", ""),
		ASRModel:    getEnvOrDefault("SPEECH_ASR_MODEL", ""),
		ASRLanguage: getEnvOrDefault("SPEECH_ASR_LANGUAGE", "es-ES"),
		TTSVoice:    getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:    ttsSpeed,
		TTSVolume:   ttsVolume,
		TTSLanguage: getEnvOrDefault("SPEECH_TTS_LANGUAGE", "es-ES"),
		Timeout:     timeoutSeconds,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parsePositiveIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
	}
	return *val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
