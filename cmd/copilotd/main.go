package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-copilot/internal/audio"
	"voice-copilot/internal/auth"
	"voice-copilot/internal/callmanager"
	"voice-copilot/internal/calls"
	"voice-copilot/internal/config"
	"voice-copilot/internal/recorder"
	"voice-copilot/internal/room"
	"voice-copilot/internal/telephony"
	"voice-copilot/pkg/logger"

	"github.com/gin-gonic/gin"
)

// copilotd is the device-side daemon: it bridges the external call provider,
// owns the audio path and runs the call session orchestrator. A small local
// HTTP API exposes call intents to the on-device UI.
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDaemon()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens := auth.StaticTokenSource(cfg.Backend.APIToken)

	rooms, err := room.NewClient(cfg.Backend, tokens)
	if err != nil {
		log.Error("room client init failed", "err", err)
		os.Exit(1)
	}
	rec, err := recorder.NewClient(cfg.Backend, tokens)
	if err != nil {
		log.Error("recorder client init failed", "err", err)
		os.Exit(1)
	}

	bridge, err := telephony.NewBridge(telephony.BridgeConfig{
		URL:               cfg.Provider.WSURL,
		HandshakeTimeout:  cfg.Provider.HandshakeTimeout,
		MaxReconnectTries: cfg.Provider.MaxReconnectTries,
	}, logger.Component(log, "provider_bridge"))
	if err != nil {
		log.Error("bridge init failed", "err", err)
		os.Exit(1)
	}

	prefs := callmanager.NewAtomicPreferences(cfg.Call.LoggingEnabled)

	manager, err := callmanager.New(callmanager.Config{
		Provider:       bridge,
		Audio:          audio.NewSession(audio.NopBinding{}, logger.Component(log, "audio")),
		Rooms:          rooms,
		Recorder:       rec,
		Prefs:          prefs,
		Identity:       cfg.Call.Identity,
		CallContext:    calls.ContextHandsFree,
		EndAckDeadline: cfg.Call.EndAckDeadline,
		Logger:         logger.Component(log, "callmanager"),
	})
	if err != nil {
		log.Error("call manager init failed", "err", err)
		os.Exit(1)
	}

	go func() {
		if err := bridge.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("provider bridge exited", "err", err)
			stop()
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerControlRoutes(r, manager, prefs)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("copilotd listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
