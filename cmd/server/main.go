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

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tactics/internal/config"
	"tactics/internal/game"
	"tactics/internal/lobby"
	"tactics/internal/logging"
	"tactics/internal/server"
	"tactics/internal/session"
	"tactics/internal/storage"
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
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	history, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer history.Close()

	clock := clockwork.NewRealClock()
	registry := lobby.NewRegistry(clock, logger)
	engine := game.NewEngine(game.DefaultCatalog(), game.Rules{
		Encounters:  game.EncounterMode(cfg.EncounterMode),
		AutoEndTurn: cfg.AutoEndTurn,
	}, logger)
	coord := session.NewCoordinator(engine, logger)

	srv := server.New(server.Deps{
		Lobby:          registry,
		Engine:         engine,
		Coordinator:    coord,
		History:        history,
		Clock:          clock,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	sweeper, err := lobby.StartSweeper(registry, clock, cfg.SweepInterval, cfg.MatchMaxAge, logger)
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("encounters", cfg.EncounterMode))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
