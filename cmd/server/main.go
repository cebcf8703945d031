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

	"github.com/DoyleJ11/sketchroom/internal/config"
	"github.com/DoyleJ11/sketchroom/internal/httpapi"
	"github.com/DoyleJ11/sketchroom/internal/hub"
	"github.com/DoyleJ11/sketchroom/internal/lobby"
	"github.com/DoyleJ11/sketchroom/internal/logging"
	"github.com/DoyleJ11/sketchroom/internal/store"
	"github.com/DoyleJ11/sketchroom/internal/words"
	"github.com/DoyleJ11/sketchroom/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type history interface {
	lobby.ResultRecorder
	httpapi.History
}

func main() {
	cfg := &config.Config{}
	if err := config.NewCommand(cfg, serve).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(parent context.Context, cfg *config.Config) (err error) {
	log, err := logging.New(cfg.LogLevel, cfg.DevLogging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	categories := words.Default()
	if cfg.WordsFile != "" {
		if categories, err = words.LoadFile(cfg.WordsFile); err != nil {
			return err
		}
	}
	bank, err := words.NewBank(categories, cfg.WordCategory, nil)
	if err != nil {
		return err
	}
	log.Info("word bank loaded", zap.Int("words", bank.Size()), zap.String("category", cfg.WordCategory))

	var games history = store.Nop{}
	if cfg.DatabaseURL != "" {
		db, oerr := store.Open(ctx, cfg.DatabaseURL, log)
		if oerr != nil {
			return oerr
		}
		defer func() { err = multierr.Append(err, db.Close()) }()
		games = db
		log.Info("game history enabled")
	}

	// Build the hub with the template every room starts from
	h := hub.NewHub(ctx, lobby.Options{
		Rules:       cfg.Rules(),
		Words:       bank,
		Logger:      log,
		Recorder:    games,
		IdleTimeout: cfg.RoomIdleTimeout,
	})

	wsCfg := ws.DefaultConfig()
	wsCfg.OriginPatterns = cfg.AllowedOrigins
	wsCfg.AutoCreate = cfg.AutoCreate

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(h, httpapi.Options{
			WS:      wsCfg,
			History: games,
			Logger:  log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		serr := srv.Shutdown(sctx)

		select {
		case h.Inbox() <- hub.ShutdownHub{}:
		case <-h.Done():
		}
		select {
		case <-h.Done():
		case <-sctx.Done():
			serr = multierr.Append(serr, sctx.Err())
		}
		return serr
	})
	return g.Wait()
}
