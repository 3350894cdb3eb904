package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhouzirui/z-voice/internal/bootstrap"
	"github.com/zhouzirui/z-voice/internal/config"
	"github.com/zhouzirui/z-voice/internal/handler"
	"github.com/zhouzirui/z-voice/internal/logger"
	"github.com/zhouzirui/z-voice/internal/service/turn"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap.LoadEnv()

	rt, err := bootstrap.Load()
	if err != nil {
		logger.Fatal("startup failed", "err", err)
	}

	// 供应商配置错误在启动时直接退出
	set, err := rt.Registry.Build(ctx)
	if err != nil {
		logger.Fatal("provider selection failed", "err", err)
	}

	session, err := rt.Session()
	if err != nil {
		logger.Fatal("create session failed", "err", err)
	}
	logger.Info("conversation started", "session", session.ID, "dir", session.Dir, "persona", rt.Persona.ID)

	events := turn.NewBroadcaster(0)
	defer events.Close()

	worker := turn.NewWorker(rt.NewOrchestrator(session, set, events.Publish))
	defer worker.Close()

	router := handler.NewRouter(handler.Dependencies{
		Personas:   rt.Personas,
		PersonaID:  rt.Persona.ID,
		Session:    session,
		Worker:     worker,
		Events:     events,
		SampleRate: rt.Config.Conversation.SampleRate,
		Channels:   rt.Config.Conversation.Channels,
	})

	startServer(ctx, rt.Config.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("z-voice listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
