package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/logger"
	speechmodel "github.com/zhouzirui/z-voice/internal/model/speech"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

const volcengineTTSURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

const (
	ttsDefaultResource = "volc.service_type.10029"
	ttsMegaResource    = "volc.megatts.default"
	ttsSeedResource    = "seed-tts-2.0"
)

var (
	// ErrEmptyText is returned when a synthesizer is asked to speak nothing.
	ErrEmptyText = errors.New("synthesis text is empty")
	// ErrEmptyAudio is returned when a provider finishes without audio bytes.
	ErrEmptyAudio = errors.New("synthesis produced no audio")

	errResourceMismatch = errors.New("resource ID is mismatched with speaker related resource")
)

// VolcengineSynthesizer 调用火山引擎单向流式 TTS，并按音色/资源 ID 候选依次回退。
type VolcengineSynthesizer struct {
	cfg    config.SpeechConfig
	voice  string
	dialer *websocket.Dialer
	url    string
	log    *log.Logger
}

// NewVolcengineSynthesizer 创建合成器；voice 为空时使用 SPEECH_TTS_VOICE。
func NewVolcengineSynthesizer(cfg config.SpeechConfig, voice string) *VolcengineSynthesizer {
	url := volcengineTTSURL
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		url = strings.TrimRight(base, "/") + "/api/v3/tts/unidirectional/stream"
	}
	return &VolcengineSynthesizer{
		cfg:    cfg,
		voice:  strings.TrimSpace(voice),
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		url:    url,
		log:    logger.WithPrefix("[tts]"),
	}
}

func (s *VolcengineSynthesizer) Name() string { return "volcengine" }

type volcengineTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string                   `json:"speaker"`
		Text        string                   `json:"text"`
		AudioParams volcengineTTSAudioParams `json:"audio_params"`
		Additions   string                   `json:"additions,omitempty"`
		Language    string                   `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcengineTTSAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

type ttsServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// Synthesize 返回 mp3 音频。
func (s *VolcengineSynthesizer) Synthesize(ctx context.Context, text string) (*speechmodel.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, utils.WrapError(s.Name(), "synthesize", ErrEmptyText)
	}
	appID, token, err := resolveCredentials(s.cfg)
	if err != nil {
		return nil, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Second)
		defer cancel()
	}

	speakers := resolveSpeakerCandidates(s.voice, s.cfg.TTSVoice)
	var lastErr error
	for _, speaker := range speakers {
		for _, resourceID := range resolveResourceCandidates(speaker) {
			data, err := s.synthesizeWith(ctx, appID, token, speaker, resourceID, text)
			if err == nil {
				return &speechmodel.Audio{Data: data, Format: "mp3"}, nil
			}
			if !errors.Is(err, errResourceMismatch) {
				return nil, utils.WrapError(s.Name(), "synthesize", err)
			}
			s.log.Warn("resource mismatch, trying next candidate", "speaker", speaker, "resource", resourceID)
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no speaker candidates for voice %q", s.voice)
	}
	return nil, utils.WrapError(s.Name(), "synthesize", lastErr)
}

func (s *VolcengineSynthesizer) synthesizeWith(ctx context.Context, appID, token, speaker, resourceID, text string) ([]byte, error) {
	header, connectID := volcengineHeaders(appID, token, resourceID)
	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial tts: %w", err)
	}
	defer conn.Close()
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			s.log.Debug("connected", "logid", logid, "resource", resourceID)
		}
	}

	payload, err := json.Marshal(s.buildRequest(connectID, speaker, text))
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newClientRequest(payload, noCompression).marshal()); err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}

	// ReadMessage 不感知 ctx，取消时关闭连接使其返回
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var audio bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read tts response: %w", err)
		}
		msg, err := unmarshalFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode tts frame: %w", err)
		}

		switch msg.kind {
		case errorMessage:
			payload, _ := decompress(msg.payload, msg.compression)
			if strings.Contains(string(payload), errResourceMismatch.Error()) {
				return nil, fmt.Errorf("%w: %s", errResourceMismatch, resourceID)
			}
			return nil, fmt.Errorf("tts error %d: %s", msg.errorCode, string(payload))

		case audioOnlyServerResponse:
			chunk, err := decompress(msg.payload, msg.compression)
			if err != nil {
				return nil, err
			}
			audio.Write(chunk)

		case fullServerResponse:
			payload, err := decompress(msg.payload, msg.compression)
			if err != nil {
				return nil, err
			}
			var server ttsServerMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &server); err != nil {
					s.log.Warn("ignoring malformed tts payload", "err", err)
				} else {
					if server.Code != 0 && server.Code != 3000 {
						return nil, fmt.Errorf("tts api error %d: %s", server.Code, server.Message)
					}
					if server.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(server.Data)
						if err != nil {
							return nil, fmt.Errorf("decode base64 audio: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			finished := msg.hasEvent() && msg.event == eventSessionFinished
			if finished || msg.final() || server.Sequence < 0 {
				if audio.Len() == 0 {
					return nil, ErrEmptyAudio
				}
				return audio.Bytes(), nil
			}

		default:
			s.log.Debug("unexpected tts frame", "type", msg.kind)
		}
	}
}

func (s *VolcengineSynthesizer) buildRequest(uid, speaker, text string) *volcengineTTSRequest {
	req := &volcengineTTSRequest{}
	req.User.UID = uid
	req.ReqParams.Speaker = speaker
	req.ReqParams.Text = text
	req.ReqParams.AudioParams.Format = "mp3"
	req.ReqParams.AudioParams.SampleRate = 24000
	if s.cfg.TTSSpeed > 0 && s.cfg.TTSSpeed != 1.0 {
		req.ReqParams.AudioParams.SpeedRatio = s.cfg.TTSSpeed
	}
	if s.cfg.TTSVolume > 0 && s.cfg.TTSVolume != 1.0 {
		req.ReqParams.AudioParams.VolumeRatio = s.cfg.TTSVolume
	}
	req.ReqParams.Language = strings.TrimSpace(s.cfg.TTSLanguage)
	req.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return req
}

// resolveResourceCandidates 根据音色名推断资源 ID 的尝试顺序。
func resolveResourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if voice == "" {
		return []string{ttsDefaultResource, ttsSeedResource}
	}
	if strings.HasPrefix(voice, "S_") {
		return []string{ttsMegaResource}
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{ttsSeedResource, ttsDefaultResource}
		}
	}
	return []string{ttsDefaultResource, ttsSeedResource}
}

var speakerAliases = map[string]string{
	"en_default": "en_female_amy_jupiter_bigtts",
	"zh_default": "zh_female_vv_uranus_bigtts",
}

// resolveSpeakerCandidates 返回去重后的音色列表：人设音色优先，配置音色兜底。
func resolveSpeakerCandidates(requested, fallback string) []string {
	var candidates []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if mapped, ok := speakerAliases[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range candidates {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		candidates = append(candidates, s)
	}
	add(requested)
	add(fallback)
	return candidates
}
