package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	apihttp "chessroom/internal/server/http"
	"chessroom/internal/server/match"
	"chessroom/internal/server/processor"
	"chessroom/internal/server/storage"
	"chessroom/internal/server/transport"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const gracefulShutdownTimeout = 5 * time.Second

func openStore(ctx context.Context, c serveCmd) (storage.Store, error) {
	switch c.Store {
	case "sqlite":
		store, err := storage.NewSQLiteStore(c.SQLitePath, c.Dev)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if err := store.InitDB(); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return store, nil
	case "redis":
		store, err := storage.NewRedisStore(ctx, c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		return store, nil
	default:
		log.Warn().Msg("persistent storage disabled, matches are lost on restart")
		return storage.NewMemoryStore(), nil
	}
}

func serve(c serveCmd) error {
	if c.PIDLock && c.PID == "" {
		return errors.New("--pid-lock requires --pid")
	}
	if c.PID != "" {
		release, err := acquirePIDFile(c.PID, c.PIDLock)
		if err != nil {
			return fmt.Errorf("failed to manage PID file: %w", err)
		}
		defer release()
		log.Info().Str("path", c.PID).Bool("lock", c.PIDLock).Msg("pid file created")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close storage cleanly")
		}
	}()

	hub := transport.NewHub(transport.Config{
		AllowedOrigins:   c.AllowedOrigins,
		ActionsPerSecond: c.ActionRate,
		ActionBurst:      c.ActionBurst,
	})
	proc := processor.New(store, hub, match.Options{Clock: c.clockConfig()})
	hub.Bind(proc)

	sweeper, err := processor.NewSweeper(proc, clockwork.NewRealClock(), sweepInterval(c.Sweep))
	if err != nil {
		return err
	}
	sweeper.Start()

	app := apihttp.NewFiberApp(store, proc.Registry(), apihttp.Config{
		DevMode:      c.Dev,
		AllowOrigins: strings.Join(c.AllowedOrigins, ","),
	})
	apiAddr := fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)

	wsAddr := fmt.Sprintf("%s:%d", c.WSHost, c.WSPort)
	wsServer := &http.Server{
		Addr:              wsAddr,
		Handler:           hub.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", apiAddr).Str("store", store.Kind()).Bool("dev", c.Dev).Msg("api server listening")
		if err := app.Listen(apiAddr); err != nil {
			errc <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		log.Info().Str("addr", wsAddr).Msg("websocket server listening on /ws")
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("websocket server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down servers")
	case err = <-errc:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("websocket server forced to shutdown")
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("api server forced to shutdown")
	}
	if err := sweeper.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("sweeper shutdown failed")
	}

	// Open matches stay persisted as they are and resume on the next start
	hub.Shutdown()
	proc.Registry().Shutdown()

	log.Info().Msg("servers exited")
	return err
}
