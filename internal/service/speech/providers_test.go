package speech

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	googleoption "google.golang.org/api/option"

	"github.com/zhouzirui/z-voice/internal/config"
	speechmodel "github.com/zhouzirui/z-voice/internal/model/speech"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

func TestWhisperTranscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"), r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-large-v3", r.FormValue("model"))
		assert.Equal(t, "es", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "user.wav", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "RIFF", string(data[:4]))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  ¿Qué tal estás?  "}`)
	}))
	defer srv.Close()

	transcriber := NewWhisperTranscriber("groq", config.OpenAICompatConfig{
		APIKey:             "k",
		BaseURL:            srv.URL + "/openai/v1/",
		TranscriptionModel: "whisper-large-v3",
	}, "es", option.WithMaxRetries(0))

	text, err := transcriber.Transcribe(context.Background(), speechmodel.NewRecording(make([]byte, 3200)))
	require.NoError(t, err)
	assert.Equal(t, "¿Qué tal estás?", text)

	_, err = transcriber.Transcribe(context.Background(), speechmodel.Recording{})
	assert.ErrorIs(t, err, ErrEmptyRecording)
}

func TestWhisperTranscriberUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	transcriber := NewWhisperTranscriber("groq", config.OpenAICompatConfig{APIKey: "bad", BaseURL: srv.URL + "/v1/", TranscriptionModel: "m"}, "", option.WithMaxRetries(0))
	_, err := transcriber.Transcribe(context.Background(), speechmodel.NewRecording([]byte{0, 1}))
	require.Error(t, err)

	var apiErr *utils.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsUnauthorized())
	assert.False(t, utils.IsRetryable(err))
}

func TestOpenAISynthesizer(t *testing.T) {
	var request map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/audio/speech"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &request))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3 fake mp3"))
	}))
	defer srv.Close()

	synth := NewOpenAISynthesizer(config.OpenAIConfig{
		OpenAICompatConfig: config.OpenAICompatConfig{APIKey: "k", BaseURL: srv.URL + "/v1/"},
		TTSModel:           "gpt-4o-mini-tts",
		TTSVoice:           "alloy",
	}, option.WithMaxRetries(0))

	audio, err := synth.Synthesize(context.Background(), "Hola.")
	require.NoError(t, err)
	assert.Equal(t, "ID3 fake mp3", string(audio.Data))
	assert.Equal(t, "mp3", audio.Format)
	assert.Equal(t, "alloy", request["voice"])
	assert.Equal(t, "mp3", request["response_format"])
	assert.Equal(t, "Hola.", request["input"])

	_, err = synth.Synthesize(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestGoogleSynthesizer(t *testing.T) {
	var request map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "text:synthesize"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &request))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString([]byte("mp3-bytes")),
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	synth, err := NewGoogleSynthesizer(ctx, config.GoogleTTSConfig{
		APIKey:       "k",
		VoiceName:    "es-ES-Chirp3-HD-Algenib",
		LanguageCode: "es-ES",
	}, googleoption.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	audio, err := synth.Synthesize(ctx, "Vamos a por un café.")
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(audio.Data))

	voice := request["voice"].(map[string]any)
	assert.Equal(t, "es-ES-Chirp3-HD-Algenib", voice["name"])
	assert.Equal(t, "es-ES", voice["languageCode"])
	assert.Equal(t, "MP3", request["audioConfig"].(map[string]any)["audioEncoding"])
}

func TestGoogleSynthesizerForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	}))
	defer srv.Close()

	ctx := context.Background()
	synth, err := NewGoogleSynthesizer(ctx, config.GoogleTTSConfig{APIKey: "k"}, googleoption.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	_, err = synth.Synthesize(ctx, "hola")
	var apiErr *utils.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "google", apiErr.Provider)
}

func newMiniMaxServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer mm-key", r.Header.Get("Authorization"))
		var req minimaxRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "speech-02-hd", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, 32000, req.AudioSetting.SampleRate)
		assert.Equal(t, "male-qn-qingse", req.VoiceSetting.VoiceID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func miniMaxConfig(url string) config.MiniMaxConfig {
	return config.MiniMaxConfig{APIKey: "mm-key", BaseURL: url, Model: "speech-02-hd", VoiceID: "male-qn-qingse"}
}

func TestMiniMaxSynthesizer(t *testing.T) {
	srv := newMiniMaxServer(t, http.StatusOK, `{"data":{"audio":"`+hex.EncodeToString([]byte("mp3!"))+`","status":2},"base_resp":{"status_code":0,"status_msg":"success"}}`)

	audio, err := NewMiniMaxSynthesizer(miniMaxConfig(srv.URL), time.Second).Synthesize(context.Background(), "Hola")
	require.NoError(t, err)
	assert.Equal(t, "mp3!", string(audio.Data))
	assert.Equal(t, "mp3", audio.Format)
}

func TestMiniMaxSynthesizerFailures(t *testing.T) {
	t.Run("base_resp error", func(t *testing.T) {
		srv := newMiniMaxServer(t, http.StatusOK, `{"base_resp":{"status_code":1004,"status_msg":"authentication failed"}}`)
		_, err := NewMiniMaxSynthesizer(miniMaxConfig(srv.URL), time.Second).Synthesize(context.Background(), "Hola")

		var apiErr *utils.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "1004", apiErr.Code)
		assert.Equal(t, "authentication failed", apiErr.Message)
	})

	t.Run("empty audio", func(t *testing.T) {
		srv := newMiniMaxServer(t, http.StatusOK, `{"data":{"audio":""},"base_resp":{"status_code":0}}`)
		_, err := NewMiniMaxSynthesizer(miniMaxConfig(srv.URL), time.Second).Synthesize(context.Background(), "Hola")
		assert.ErrorIs(t, err, ErrEmptyAudio)
	})

	t.Run("server error", func(t *testing.T) {
		srv := newMiniMaxServer(t, http.StatusBadGateway, `upstream down`)
		_, err := NewMiniMaxSynthesizer(miniMaxConfig(srv.URL), time.Second).Synthesize(context.Background(), "Hola")
		assert.True(t, utils.IsRetryable(err))
	})

	t.Run("bad hex", func(t *testing.T) {
		srv := newMiniMaxServer(t, http.StatusOK, `{"data":{"audio":"zz"},"base_resp":{"status_code":0}}`)
		_, err := NewMiniMaxSynthesizer(miniMaxConfig(srv.URL), time.Second).Synthesize(context.Background(), "Hola")
		assert.ErrorContains(t, err, "decode hex audio")
	})
}
