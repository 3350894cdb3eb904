package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"github.com/zhouzirui/z-voice/internal/config"
	speechmodel "github.com/zhouzirui/z-voice/internal/model/speech"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// GoogleSynthesizer 使用 Cloud Text-to-Speech REST 接口。
type GoogleSynthesizer struct {
	svc      *texttospeech.Service
	voice    string
	language string
}

// NewGoogleSynthesizer 创建合成器；未配置 API Key 时走 Application Default Credentials。
func NewGoogleSynthesizer(ctx context.Context, cfg config.GoogleTTSConfig, extra ...option.ClientOption) (*GoogleSynthesizer, error) {
	var opts []option.ClientOption
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	opts = append(opts, extra...)

	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, utils.WrapError("google", "init", err)
	}
	return &GoogleSynthesizer{svc: svc, voice: cfg.VoiceName, language: cfg.LanguageCode}, nil
}

func (s *GoogleSynthesizer) Name() string { return "google" }

func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text string) (*speechmodel.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, utils.WrapError(s.Name(), "synthesize", ErrEmptyText)
	}

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: s.language,
			Name:         s.voice,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}
	resp, err := s.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, utils.WrapError(s.Name(), "synthesize", normalizeGoogleError(err))
	}

	data, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, utils.WrapError(s.Name(), "synthesize", fmt.Errorf("decode audio content: %w", err))
	}
	if len(data) == 0 {
		return nil, utils.WrapError(s.Name(), "synthesize", ErrEmptyAudio)
	}
	return &speechmodel.Audio{Data: data, Format: "mp3"}, nil
}

func normalizeGoogleError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &utils.APIError{
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Provider:   "google",
		}
	}
	return fmt.Errorf("request failed: %w", err)
}
