package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/logger"
	speechmodel "github.com/zhouzirui/z-voice/internal/model/speech"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// WhisperTranscriber 通过 OpenAI 兼容的 /audio/transcriptions 接口转写（Groq、OpenAI）。
type WhisperTranscriber struct {
	name     string
	client   openai.Client
	model    string
	language string
}

// NewWhisperTranscriber 创建转写客户端；language 为空时由服务端自动识别。
func NewWhisperTranscriber(name string, cfg config.OpenAICompatConfig, language string, extra ...option.RequestOption) *WhisperTranscriber {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, extra...)

	return &WhisperTranscriber{
		name:     name,
		client:   openai.NewClient(reqOpts...),
		model:    cfg.TranscriptionModel,
		language: strings.TrimSpace(language),
	}
}

func (t *WhisperTranscriber) Name() string { return t.name }

// Transcribe 上传 WAV 封装后的录音并返回识别文本。
func (t *WhisperTranscriber) Transcribe(ctx context.Context, rec speechmodel.Recording) (string, error) {
	if rec.Empty() {
		return "", utils.WrapError(t.name, "transcribe", ErrEmptyRecording)
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(rec.WAV()), "user.wav", "audio/wav"),
		Model: openai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}

	logger.Debug("sending transcription", "provider", t.name, "model", t.model, "duration", rec.Duration())
	transcription, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", utils.WrapError(t.name, "transcribe", normalizeOpenAIError(t.name, err))
	}
	return strings.TrimSpace(transcription.Text), nil
}

// OpenAISynthesizer 调用 /audio/speech，固定输出 mp3。
type OpenAISynthesizer struct {
	client openai.Client
	model  string
	voice  string
}

func NewOpenAISynthesizer(cfg config.OpenAIConfig, extra ...option.RequestOption) *OpenAISynthesizer {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, extra...)

	return &OpenAISynthesizer{
		client: openai.NewClient(reqOpts...),
		model:  cfg.TTSModel,
		voice:  cfg.TTSVoice,
	}
}

func (s *OpenAISynthesizer) Name() string { return "openai" }

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (*speechmodel.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, utils.WrapError(s.Name(), "synthesize", ErrEmptyText)
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, utils.WrapError(s.Name(), "synthesize", normalizeOpenAIError(s.Name(), err))
	}
	defer resp.Body.Close()

	data, err := readAudioBody(resp.Body)
	if err != nil {
		return nil, utils.WrapError(s.Name(), "synthesize", err)
	}
	return &speechmodel.Audio{Data: data, Format: "mp3"}, nil
}

func normalizeOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &utils.APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   provider,
		}
	}
	return fmt.Errorf("request failed: %w", err)
}
