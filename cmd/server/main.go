package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cyberlab-sim/internal/auth"
	"github.com/DoyleJ11/cyberlab-sim/internal/config"
	"github.com/DoyleJ11/cyberlab-sim/internal/detect"
	"github.com/DoyleJ11/cyberlab-sim/internal/engine"
	"github.com/DoyleJ11/cyberlab-sim/internal/httpapi"
	"github.com/DoyleJ11/cyberlab-sim/internal/hub"
	"github.com/DoyleJ11/cyberlab-sim/internal/lobby"
	"github.com/DoyleJ11/cyberlab-sim/internal/logging"
	"github.com/DoyleJ11/cyberlab-sim/internal/store"
	"github.com/DoyleJ11/cyberlab-sim/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	sigs, err := detect.LoadCatalog(cfg.SignaturesPath)
	if err != nil {
		return err
	}
	matcher, err := detect.NewMatcher(sigs)
	if err != nil {
		return err
	}
	log.Info("signature catalog loaded", zap.Int("signatures", len(sigs)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubOpts := []hub.Option{
		hub.WithLogger(log),
		hub.WithSessionOptions(engine.WithMatcher(matcher)),
	}
	deps := httpapi.Deps{
		DefaultDifficulty: cfg.DefaultDifficulty,
		WS: ws.Options{
			IdleTimeout:    cfg.WSReadTimeout,
			WriteTimeout:   cfg.WSWriteTimeout,
			Outbox:         cfg.ClientOutbox,
			OriginPatterns: cfg.WSOriginPatterns,
		},
		Log: log,
	}
	if cfg.AuthRequired {
		deps.WS.Verifier = auth.NewVerifier(cfg.JWTSecret)
	}

	if cfg.DBDriver != "none" {
		st, err := store.Open(cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		hubOpts = append(hubOpts, hub.WithLobbyOptions(lobby.WithRecorder(st)))
		deps.Events = st
		log.Info("event store ready", zap.String("driver", cfg.DBDriver))
	}

	h := hub.NewHub(ctx, hubOpts...)
	deps.Hub = h

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("auth", cfg.AuthRequired))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.Shutdown() // closes sockets via their outboxes and flushes event logs
	return srv.Shutdown(shutdownCtx)
}
