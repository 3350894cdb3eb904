package speech

import (
	"context"
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

const (
	volcengineASRURL      = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	volcengineASRResource = "volc.bigasr.sauc.duration"

	// 服务端成功码
	asrSuccessCode = 20000000
)

// ErrEmptyRecording is returned when a transcriber receives no samples.
var ErrEmptyRecording = errors.New("recording has no audio")

// VolcengineTranscriber 通过火山引擎大模型流式识别（非流式输出模式）转写一段录音。
type VolcengineTranscriber struct {
	cfg      config.SpeechConfig
	dialer   *websocket.Dialer
	url      string
	interval time.Duration
	log      *log.Logger
}

// NewVolcengineTranscriber 创建火山引擎 ASR 客户端
func NewVolcengineTranscriber(cfg config.SpeechConfig) *VolcengineTranscriber {
	url := volcengineASRURL
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		url = strings.TrimRight(base, "/") + "/api/v3/sauc/bigmodel_nostream"
	}
	return &VolcengineTranscriber{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		url:      url,
		interval: 200 * time.Millisecond,
		log:      logger.WithPrefix("[asr]"),
	}
}

func (t *VolcengineTranscriber) Name() string { return "volcengine" }

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text     string `json:"text"`
	Definite bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result"`
}

// Transcribe 发送首帧参数后按 200ms 分包推送 PCM，并等待最后一包结果。
func (t *VolcengineTranscriber) Transcribe(ctx context.Context, rec speechmodel.Recording) (string, error) {
	if rec.Empty() {
		return "", utils.WrapError(t.Name(), "transcribe", ErrEmptyRecording)
	}
	rec = rec.Normalize()

	appID, token, err := resolveCredentials(t.cfg)
	if err != nil {
		return "", err
	}

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.Timeout)*time.Second)
		defer cancel()
	}

	header, connectID := volcengineHeaders(appID, token, volcengineASRResource)
	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		return "", utils.WrapError(t.Name(), "dial", err)
	}
	defer conn.Close()
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			t.log.Debug("connected", "logid", logid, "connect_id", connectID)
		}
	}

	payload, err := json.Marshal(t.buildRequest(rec, connectID))
	if err != nil {
		return "", fmt.Errorf("marshal asr request: %w", err)
	}
	payload, err = compress(payload, gzipCompression)
	if err != nil {
		return "", err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newClientRequest(payload, gzipCompression).marshal()); err != nil {
		return "", utils.WrapError(t.Name(), "send request", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 并发收发：服务端提前报错时可以及时停止推送
	type outcome struct {
		text string
		err  error
	}
	results := make(chan outcome, 1)
	go func() {
		text, err := t.receive(conn)
		results <- outcome{text: text, err: err}
	}()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- t.sendAudio(ctx, conn, rec)
	}()

	for {
		select {
		case err := <-sendErr:
			if err != nil {
				return "", utils.WrapError(t.Name(), "send audio", err)
			}
			sendErr = nil
		case out := <-results:
			if out.err != nil {
				return "", utils.WrapError(t.Name(), "transcribe", out.err)
			}
			return out.text, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (t *VolcengineTranscriber) buildRequest(rec speechmodel.Recording, uid string) *asrRequest {
	req := &asrRequest{}
	req.User.UID = uid

	req.Audio.Format = "pcm"
	req.Audio.Codec = "raw"
	req.Audio.Rate = rec.SampleRate
	req.Audio.Bits = rec.BitsPerSample
	req.Audio.Channel = rec.Channels
	req.Audio.Language = strings.TrimSpace(t.cfg.ASRLanguage)

	req.Request.ModelName = "bigmodel"
	if model := strings.TrimSpace(t.cfg.ASRModel); model != "" {
		req.Request.ModelName = model
	}
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800
	return req
}

// chunkSize 返回 200ms 音频对应的字节数（16kHz/16bit/单声道为 6400）。
func chunkSize(rec speechmodel.Recording) int {
	size := rec.SampleRate * rec.Channels * rec.BitsPerSample / 8 / 5
	if size <= 0 {
		return 6400
	}
	return size
}

func (t *VolcengineTranscriber) sendAudio(ctx context.Context, conn *websocket.Conn, rec speechmodel.Recording) error {
	size := chunkSize(rec)
	// 首帧占用序号 1，音频从 2 开始
	sequence := int32(2)

	for offset := 0; offset < len(rec.PCM); offset += size {
		end := min(offset+size, len(rec.PCM))
		last := end >= len(rec.PCM)

		chunk, err := compress(rec.PCM[offset:end], gzipCompression)
		if err != nil {
			return err
		}
		msg := newAudioRequest(chunk, sequence, last, gzipCompression)
		if err := conn.WriteMessage(websocket.BinaryMessage, msg.marshal()); err != nil {
			return fmt.Errorf("send audio chunk %d: %w", sequence, err)
		}
		sequence++

		if last {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.interval):
		}
	}
	return nil
}

func (t *VolcengineTranscriber) receive(conn *websocket.Conn) (string, error) {
	var text string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("read asr response: %w", err)
		}
		msg, err := unmarshalFrame(data)
		if err != nil {
			return "", fmt.Errorf("decode asr frame: %w", err)
		}

		switch msg.kind {
		case errorMessage:
			payload, _ := decompress(msg.payload, msg.compression)
			return "", fmt.Errorf("asr error %d: %s", msg.errorCode, string(payload))

		case fullServerResponse:
			payload, err := decompress(msg.payload, msg.compression)
			if err != nil {
				return "", err
			}
			var server asrServerMessage
			if err := json.Unmarshal(payload, &server); err != nil {
				t.log.Warn("ignoring malformed asr payload", "err", err)
				continue
			}
			if server.Code != 0 && server.Code != asrSuccessCode {
				return "", fmt.Errorf("asr api error %d: %s", server.Code, server.Message)
			}
			if candidate := server.text(); candidate != "" {
				text = candidate
			}
			if msg.final() || server.Sequence < 0 {
				return strings.TrimSpace(text), nil
			}
		}
	}
}

func (m *asrServerMessage) text() string {
	if m.Result.Text != "" {
		return m.Result.Text
	}
	parts := make([]string, 0, len(m.Result.Utterances))
	for _, u := range m.Result.Utterances {
		parts = append(parts, u.Text)
	}
	return strings.Join(parts, " ")
}
