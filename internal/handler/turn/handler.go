package turn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/model/speech"
	chatsvc "github.com/zhouzirui/z-voice/internal/service/chat"
	turnsvc "github.com/zhouzirui/z-voice/internal/service/turn"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// maxUploadBytes 约等于 16kHz 单声道 16bit 下 17 分钟的录音。
const maxUploadBytes = 32 << 20

const heartbeatInterval = 15 * time.Second

// Runner 执行一个完整的轮次，*turnsvc.Worker 实现了它。
type Runner interface {
	Run(ctx context.Context, rec speech.Recording) (*turnsvc.Result, error)
}

// Handler 轮次相关的 HTTP 处理器
type Handler struct {
	runner  Runner
	session *chatsvc.Session
	events  *turnsvc.Broadcaster
	log     *log.Logger
}

// New 创建轮次处理器。events 为 nil 时 /events 返回 503。
func New(runner Runner, session *chatsvc.Session, events *turnsvc.Broadcaster) *Handler {
	return &Handler{
		runner:  runner,
		session: session,
		events:  events,
		log:     logger.WithPrefix("[turn-http]"),
	}
}

// RegisterRoutes 注册轮次、会话与事件路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/turns", h.handleCreateTurn)
	r.Get("/turns/{turn}/audio", h.handleTurnAudio)
	r.Get("/conversation", h.handleConversation)
	r.Get("/events", h.handleEvents)
}

type turnResponse struct {
	*turnsvc.Result
	AudioURL string `json:"audio_url,omitempty"`
}

func newTurnResponse(res *turnsvc.Result) turnResponse {
	resp := turnResponse{Result: res}
	if res.AudioPath != "" {
		resp.AudioURL = "/api/turns/" + strconv.Itoa(res.Turn) + "/audio"
	}
	return resp
}

func (h *Handler) handleCreateTurn(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(w, r)
	if err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_audio", err.Error())
		return
	}

	rec, err := speech.DecodeWAV(data)
	if err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_audio", err.Error())
		return
	}

	res, err := h.runner.Run(r.Context(), rec)
	switch {
	case errors.Is(err, turnsvc.ErrBusy):
		utils.RespondErrorCode(w, http.StatusConflict, "busy", err.Error())
		return
	case errors.Is(err, turnsvc.ErrStopped):
		utils.RespondErrorCode(w, http.StatusServiceUnavailable, "stopped", err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// 客户端已断开，轮次仍在后台完成
		h.log.Info("client left before turn finished", "err", err)
		return
	case err != nil:
		h.log.Error("turn failed to run", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "turn failed")
		return
	}

	status := http.StatusOK
	if res.Failed() {
		status = http.StatusUnprocessableEntity
	}
	utils.RespondJSON(w, status, newTurnResponse(res))
}

// readUpload 接受 multipart 的 audio 字段，或直接以请求体上传的 WAV。
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.New("audio body is required")
		}
		return data, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, errors.New("failed to parse multipart form: " + err.Error())
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("audio")
	if err != nil {
		return nil, errors.New("audio file is required")
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) handleTurnAudio(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "turn"))
	if err != nil || n < 0 {
		utils.RespondError(w, http.StatusBadRequest, "turn must be a non-negative integer")
		return
	}

	path, format, err := h.session.FindAssistantAudio(n)
	if errors.Is(err, chatsvc.ErrArtifactNotFound) {
		utils.RespondError(w, http.StatusNotFound, "no audio for turn "+strconv.Itoa(n))
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "lookup audio failed")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "no audio for turn "+strconv.Itoa(n))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "stat audio failed")
		return
	}
	w.Header().Set("Content-Type", speech.ContentType(format))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.session.Snapshot())
}

// handleEvents 以 SSE 推送状态迁移，空闲时发送注释行保活。
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := h.events.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEComment(w, flusher, "connected"); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var seq int
	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			seq++
			if err := utils.SendSSEEvent(w, flusher, strconv.Itoa(seq), "state", e); err != nil {
				h.log.Debug("sse write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

