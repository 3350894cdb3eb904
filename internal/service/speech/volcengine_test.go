package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-voice/internal/config"
	speechmodel "github.com/zhouzirui/z-voice/internal/model/speech"
)

var upgrader = websocket.Upgrader{}

func wsBase(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testSpeechConfig(base string) config.SpeechConfig {
	return config.SpeechConfig{
		AppID:       "app",
		AccessToken: "token",
		BaseURL:     base,
		ASRLanguage: "es-ES",
		TTSVoice:    "zh_male_M392_conversation_wvae_bigtts",
		Timeout:     5,
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *frame {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	f, err := unmarshalFrame(data)
	require.NoError(t, err)
	return f
}

func TestVolcengineTranscriber(t *testing.T) {
	pcm := make([]byte, 6400*2+100)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	type observed struct {
		received []byte
		request  asrRequest
		frames   int
	}
	seen := make(chan observed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/sauc/bigmodel_nostream", r.URL.Path)
		assert.Equal(t, "app", r.Header.Get("X-Api-App-Key"))
		assert.Equal(t, "token", r.Header.Get("X-Api-Access-Key"))
		assert.Equal(t, volcengineASRResource, r.Header.Get("X-Api-Resource-Id"))
		assert.NotEmpty(t, r.Header.Get("X-Api-Connect-Id"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var got observed
		first := readFrame(t, conn)
		payload, err := decompress(first.payload, first.compression)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(payload, &got.request))

		for {
			f := readFrame(t, conn)
			chunk, err := decompress(f.payload, f.compression)
			require.NoError(t, err)
			got.received = append(got.received, chunk...)
			got.frames++
			if f.final() {
				break
			}
		}
		seen <- got

		body, _ := compress([]byte(`{"code":20000000,"sequence":-4,"result":{"text":"  hola Marc  "}}`), gzipCompression)
		reply := &frame{kind: fullServerResponse, flags: negativeSequence, sequence: -4, format: jsonSerialization, compression: gzipCompression, payload: body}
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, reply.marshal()))
	}))
	defer srv.Close()

	transcriber := NewVolcengineTranscriber(testSpeechConfig(wsBase(srv)))
	transcriber.interval = time.Millisecond

	text, err := transcriber.Transcribe(context.Background(), speechmodel.NewRecording(pcm))
	require.NoError(t, err)
	assert.Equal(t, "hola Marc", text)

	got := <-seen
	assert.Equal(t, pcm, got.received)
	assert.Equal(t, 3, got.frames)
	assert.Equal(t, "pcm", got.request.Audio.Format)
	assert.Equal(t, 16000, got.request.Audio.Rate)
	assert.Equal(t, "es-ES", got.request.Audio.Language)
	assert.Equal(t, "bigmodel", got.request.Request.ModelName)
}

func TestVolcengineTranscriberServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		readFrame(t, conn)
		failure := &frame{kind: errorMessage, errorCode: 45000081, payload: []byte("quota exceeded")}
		_ = conn.WriteMessage(websocket.BinaryMessage, failure.marshal())
		// 继续读取直到客户端断开，避免发送端先于接收端报错
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	transcriber := NewVolcengineTranscriber(testSpeechConfig(wsBase(srv)))
	transcriber.interval = time.Millisecond

	_, err := transcriber.Transcribe(context.Background(), speechmodel.NewRecording(make([]byte, 64000)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestVolcengineCredentialsRequired(t *testing.T) {
	cfg := testSpeechConfig("ws://127.0.0.1:1")
	cfg.AccessToken = ""

	_, err := NewVolcengineTranscriber(cfg).Transcribe(context.Background(), speechmodel.NewRecording([]byte{1, 2}))
	assert.ErrorIs(t, err, ErrMissingVolcengineCredentials)

	_, err = NewVolcengineSynthesizer(cfg, "").Synthesize(context.Background(), "hola")
	assert.ErrorIs(t, err, ErrMissingVolcengineCredentials)

	_, err = NewVolcengineTranscriber(cfg).Transcribe(context.Background(), speechmodel.Recording{})
	assert.ErrorIs(t, err, ErrEmptyRecording)
}

func TestVolcengineSynthesizerFallsBackOnResourceMismatch(t *testing.T) {
	var (
		attempts  atomic.Int32
		mu        sync.Mutex
		resources []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		resource := r.Header.Get("X-Api-Resource-Id")
		mu.Lock()
		resources = append(resources, resource)
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		first := readFrame(t, conn)
		var req volcengineTTSRequest
		require.NoError(t, json.Unmarshal(first.payload, &req))
		assert.Equal(t, "Vale, te escucho.", req.ReqParams.Text)
		assert.Equal(t, "mp3", req.ReqParams.AudioParams.Format)

		if resource == ttsSeedResource {
			failure := &frame{kind: errorMessage, errorCode: 55000000, payload: []byte(`{"error":"resource ID is mismatched with speaker related resource"}`)}
			_ = conn.WriteMessage(websocket.BinaryMessage, failure.marshal())
			return
		}

		for _, chunk := range []string{"ID3", "-audio"} {
			audio := &frame{kind: audioOnlyServerResponse, payload: []byte(chunk)}
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, audio.marshal()))
		}
		done := &frame{kind: fullServerResponse, flags: withEvent, format: jsonSerialization, event: eventSessionFinished, sessionID: "s1", payload: []byte(`{"code":3000}`)}
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, done.marshal()))
	}))
	defer srv.Close()

	synth := NewVolcengineSynthesizer(testSpeechConfig(wsBase(srv)), "zh_female_vv_uranus_bigtts")
	audio, err := synth.Synthesize(context.Background(), "Vale, te escucho.")
	require.NoError(t, err)

	assert.Equal(t, "ID3-audio", string(audio.Data))
	assert.Equal(t, "mp3", audio.Format)
	assert.EqualValues(t, 2, attempts.Load())
	mu.Lock()
	assert.Equal(t, []string{ttsSeedResource, ttsDefaultResource}, resources)
	mu.Unlock()
}

func TestResolveResourceCandidates(t *testing.T) {
	tests := []struct {
		voice string
		want  []string
	}{
		{voice: "", want: []string{ttsDefaultResource, ttsSeedResource}},
		{voice: "S_clone_speaker", want: []string{ttsMegaResource}},
		{voice: "zh_female_vv_uranus_bigtts", want: []string{ttsSeedResource, ttsDefaultResource}},
		{voice: "zh_male_organizer", want: []string{ttsDefaultResource, ttsSeedResource}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveResourceCandidates(tt.voice), tt.voice)
	}
}

func TestResolveSpeakerCandidates(t *testing.T) {
	assert.Equal(t, []string{"persona-voice", "fallback"}, resolveSpeakerCandidates("persona-voice", "fallback"))
	assert.Equal(t, []string{"fallback"}, resolveSpeakerCandidates("", "fallback"))
	assert.Equal(t, []string{"ZH_voice"}, resolveSpeakerCandidates("ZH_voice", "zh_voice"))
	assert.Equal(t, []string{"en_female_amy_jupiter_bigtts"}, resolveSpeakerCandidates("en_default", ""))
	assert.Empty(t, resolveSpeakerCandidates("", ""))
}
