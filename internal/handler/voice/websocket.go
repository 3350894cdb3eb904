package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/model/speech"
	turnsvc "github.com/zhouzirui/z-voice/internal/service/turn"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second

	// maxRecordingBytes 单次录音缓冲上限
	maxRecordingBytes = 32 << 20
)

// Submitter 把录音交给轮次 worker，*turnsvc.Worker 实现了它。
type Submitter interface {
	Submit(ctx context.Context, rec speech.Recording) (<-chan *turnsvc.Result, error)
}

// Handler WebSocket 按键说话处理器：客户端发送二进制 PCM 帧，随后发送 commit。
type Handler struct {
	worker     Submitter
	events     *turnsvc.Broadcaster
	sessionID  string
	sampleRate int
	channels   int
	upgrader   websocket.Upgrader
	log        *log.Logger
}

// New 创建 WebSocket 处理器。sampleRate/channels 是客户端未在 commit 中声明时的默认格式。
func New(worker Submitter, events *turnsvc.Broadcaster, sessionID string, sampleRate, channels int) *Handler {
	return &Handler{
		worker:     worker,
		events:     events,
		sessionID:  sessionID,
		sampleRate: sampleRate,
		channels:   channels,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: logger.WithPrefix("[websocket]"),
	}
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// commitData 可选地声明本段录音的格式
type commitData struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type resultData struct {
	*turnsvc.Result
	AudioData string `json:"audioData,omitempty"`
	AudioURL  string `json:"audioUrl,omitempty"`
}

type errorData struct {
	Turn    *int   `json:"turn,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// connection 串行化写操作，gorilla 的连接只允许一个并发写者。
type connection struct {
	conn      *websocket.Conn
	sessionID string
	writeMu   sync.Mutex
	buffer    bytes.Buffer
	log       *log.Logger
}

func (c *connection) send(msgType string, data interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		c.log.Debug("write failed", "type", msgType, "err", err)
	}
	return err
}

func (c *connection) sendError(message string) {
	c.send("error", errorData{Message: message})
}

func (c *connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	c := &connection{conn: ws, sessionID: h.sessionID, log: h.log.With("conn", uuid.NewString())}
	c.log.Info("client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws.SetReadLimit(maxRecordingBytes)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.pingLoop(ctx, c)
	if h.events != nil {
		events, unsubscribe := h.events.Subscribe()
		defer unsubscribe()
		go h.forwardEvents(ctx, c, events)
	}

	c.send("ready", map[string]any{
		"sampleRate": h.sampleRate,
		"channels":   h.channels,
	})

	for {
		kind, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read error", "err", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))

		switch kind {
		case websocket.BinaryMessage:
			h.handleAudio(c, payload)
		case websocket.TextMessage:
			var msg inboundMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				c.sendError("invalid message")
				continue
			}
			h.handleMessage(ctx, c, &msg)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, msg *inboundMessage) {
	switch msg.Type {
	case "commit":
		h.handleCommit(ctx, c, msg.Data)
	case "reset":
		c.buffer.Reset()
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) handleAudio(c *connection, chunk []byte) {
	if c.buffer.Len()+len(chunk) > maxRecordingBytes {
		c.buffer.Reset()
		c.sendError("recording too large")
		return
	}
	c.buffer.Write(chunk)
}

func (h *Handler) handleCommit(ctx context.Context, c *connection, raw json.RawMessage) {
	if c.buffer.Len() == 0 {
		c.sendError("empty recording")
		return
	}

	var format commitData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &format); err != nil {
			c.buffer.Reset()
			c.sendError("invalid commit payload")
			return
		}
	}
	if format.SampleRate <= 0 {
		format.SampleRate = h.sampleRate
	}
	if format.Channels <= 0 {
		format.Channels = h.channels
	}

	rec := speech.Recording{
		PCM:           append([]byte(nil), c.buffer.Bytes()...),
		SampleRate:    format.SampleRate,
		Channels:      format.Channels,
		BitsPerSample: speech.DefaultBitsPerSample,
	}.Normalize()
	c.buffer.Reset()

	done, err := h.worker.Submit(ctx, rec)
	if errors.Is(err, turnsvc.ErrBusy) {
		c.send("busy", errorData{Message: err.Error()})
		return
	}
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.log.Debug("recording committed", "bytes", len(rec.PCM), "duration", rec.Duration())
	go h.awaitResult(ctx, c, done)
}

func (h *Handler) awaitResult(ctx context.Context, c *connection, done <-chan *turnsvc.Result) {
	select {
	case <-ctx.Done():
	case res, ok := <-done:
		if !ok {
			c.sendError(turnsvc.ErrStopped.Error())
			return
		}
		if res.Failed() {
			turn := res.Turn
			c.send("error", errorData{Turn: &turn, Kind: string(res.Error.Kind), Message: res.Error.Message})
			return
		}
		data := resultData{Result: res}
		if res.HasAudio() {
			data.AudioData = base64.StdEncoding.EncodeToString(res.Audio)
			data.AudioURL = "/api/turns/" + strconv.Itoa(res.Turn) + "/audio"
		}
		c.send("result", data)
	}
}

func (h *Handler) forwardEvents(ctx context.Context, c *connection, events <-chan turnsvc.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := c.send("state", e); err != nil {
				return
			}
		}
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
