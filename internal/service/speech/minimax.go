package speech

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/z-voice/internal/config"
	speechmodel "github.com/zhouzirui/z-voice/internal/model/speech"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// 单次合成的音频上限，防止异常响应占满内存
const maxAudioBytes = 32 << 20

// MiniMaxSynthesizer 调用 MiniMax t2a_v2 非流式接口，音频以十六进制返回。
type MiniMaxSynthesizer struct {
	cfg    config.MiniMaxConfig
	client *http.Client
}

func NewMiniMaxSynthesizer(cfg config.MiniMaxConfig, timeout time.Duration) *MiniMaxSynthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MiniMaxSynthesizer{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (s *MiniMaxSynthesizer) Name() string { return "minimax" }

type minimaxRequest struct {
	Model        string              `json:"model"`
	Text         string              `json:"text"`
	Stream       bool                `json:"stream"`
	VoiceSetting minimaxVoiceSetting `json:"voice_setting"`
	AudioSetting minimaxAudioSetting `json:"audio_setting"`
}

type minimaxVoiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Vol     float64 `json:"vol"`
	Pitch   int     `json:"pitch"`
}

type minimaxAudioSetting struct {
	Format     string `json:"format"`
	Channel    int    `json:"channel"`
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
}

type minimaxResponse struct {
	Data *struct {
		Audio string `json:"audio"`
	} `json:"data"`
	BaseResp *struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

func (s *MiniMaxSynthesizer) Synthesize(ctx context.Context, text string) (*speechmodel.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, utils.WrapError(s.Name(), "synthesize", ErrEmptyText)
	}

	body, err := json.Marshal(minimaxRequest{
		Model:        s.cfg.Model,
		Text:         text,
		VoiceSetting: minimaxVoiceSetting{VoiceID: s.cfg.VoiceID, Speed: 1.0, Vol: 1.0},
		AudioSetting: minimaxAudioSetting{Format: "mp3", Channel: 1, SampleRate: 32000, Bitrate: 128000},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal minimax request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, utils.WrapError(s.Name(), "synthesize", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, utils.WrapError(s.Name(), "synthesize", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, utils.WrapError(s.Name(), "synthesize", &utils.APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(snippet)),
			Provider:   s.Name(),
		})
	}

	var out minimaxResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAudioBytes*2)).Decode(&out); err != nil {
		return nil, utils.WrapError(s.Name(), "synthesize", fmt.Errorf("decode response: %w", err))
	}
	if out.BaseResp != nil && out.BaseResp.StatusCode != 0 {
		return nil, utils.WrapError(s.Name(), "synthesize", &utils.APIError{
			StatusCode: resp.StatusCode,
			Message:    out.BaseResp.StatusMsg,
			Code:       fmt.Sprint(out.BaseResp.StatusCode),
			Provider:   s.Name(),
		})
	}
	if out.Data == nil || out.Data.Audio == "" {
		return nil, utils.WrapError(s.Name(), "synthesize", ErrEmptyAudio)
	}

	data, err := hex.DecodeString(out.Data.Audio)
	if err != nil {
		return nil, utils.WrapError(s.Name(), "synthesize", fmt.Errorf("decode hex audio: %w", err))
	}
	return &speechmodel.Audio{Data: data, Format: "mp3"}, nil
}

func readAudioBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) > maxAudioBytes {
		return nil, fmt.Errorf("audio larger than %d bytes", maxAudioBytes)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	return data, nil
}
