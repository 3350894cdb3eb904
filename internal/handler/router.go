package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-voice/internal/handler/persona"
	"github.com/zhouzirui/z-voice/internal/handler/turn"
	"github.com/zhouzirui/z-voice/internal/handler/voice"
	"github.com/zhouzirui/z-voice/internal/metrics"
	middlewarePkg "github.com/zhouzirui/z-voice/internal/middleware"
	personaModel "github.com/zhouzirui/z-voice/internal/model/persona"
	chatService "github.com/zhouzirui/z-voice/internal/service/chat"
	turnService "github.com/zhouzirui/z-voice/internal/service/turn"
	"github.com/zhouzirui/z-voice/pkg/utils"
)

// Dependencies 是路由需要的全部服务。
type Dependencies struct {
	Personas   personaModel.Store
	PersonaID  string
	Session    *chatService.Session
	Worker     *turnService.Worker
	Events     *turnService.Broadcaster
	SampleRate int
	Channels   int
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Observe)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	personaHandler := persona.New(deps.Personas, deps.PersonaID)
	turnHandler := turn.New(deps.Worker, deps.Session, deps.Events)
	voiceHandler := voice.New(deps.Worker, deps.Events, deps.Session.ID, deps.SampleRate, deps.Channels)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		turnHandler.RegisterRoutes(api)
		voiceHandler.RegisterRoutes(api)
	})

	return r
}
