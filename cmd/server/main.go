// clipforge server: accepts source videos, runs the clipping pipeline in the
// background and streams stage progress to clients.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clipforge/internal/auth"
	"clipforge/internal/config"
	"clipforge/internal/download"
	"clipforge/internal/export"
	"clipforge/internal/handlers"
	"clipforge/internal/llm"
	"clipforge/internal/pipeline"
	"clipforge/internal/progress"
	"clipforge/internal/storage"
	"clipforge/internal/transcribe"
	"clipforge/internal/version"
	"clipforge/internal/worker"
	"clipforge/internal/ws"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)
	log.Info().Str("version", version.Version).Msg("starting clipforge")

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	videoRepo := storage.NewVideoRepository(db)
	taskRepo := storage.NewTaskRepository(db)
	clipRepo := storage.NewClipRepository(db)

	authSvc := auth.NewService(cfg.APISecret, cfg.TokenTTL)

	hub := ws.NewHub(
		ws.Config{PingInterval: cfg.PingInterval, PongTimeout: cfg.PongTimeout},
		func(ctx context.Context, subject, resourceID string) error {
			video, err := videoRepo.GetByID(ctx, resourceID)
			if err != nil {
				return err
			}
			if video.OwnerID != subject {
				return fmt.Errorf("subject %s does not own video %s", subject, resourceID)
			}
			return nil
		},
	)
	go hub.Run()
	defer hub.Shutdown()

	tracker := progress.NewTracker(taskRepo, hub)

	transcriber, cleanup, err := newTranscriber(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	pipe, err := pipeline.New(
		tracker,
		taskRepo,
		videoRepo,
		clipRepo,
		download.NewFetcher(),
		transcriber,
		llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel),
		export.NewRegistry(filepath.Join(cfg.DataDir, "exports"), cfg.ExportWebhookURL),
		cfg.DataDir,
	)
	if err != nil {
		return err
	}

	w := worker.New(worker.Config{
		PollInterval:  cfg.WorkerInterval,
		LeaseTimeout:  cfg.LeaseTimeout,
		RetentionDays: cfg.RetentionDays,
	}, taskRepo, tracker, pipe)
	w.Start()
	defer w.Stop()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	handlers.New(cfg.APISecret, authSvc, videoRepo, taskRepo, clipRepo, pipe, hub).Register(e)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("listening")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// newTranscriber picks the ASR engine per configuration. The cleanup func
// releases the local model when one was loaded.
func newTranscriber(cfg *config.Config) (transcribe.Transcriber, func(), error) {
	if cfg.ASREngine == "remote" {
		return transcribe.NewRemoteTranscriber(cfg.ASRRemoteURL, cfg.ASRRemoteKey), func() {}, nil
	}
	modelCfg, err := transcribe.NewConfig(cfg.ASRModelDir)
	if err != nil {
		return nil, nil, fmt.Errorf("asr model: %w", err)
	}
	local, err := transcribe.NewLocalTranscriber(modelCfg)
	if err != nil {
		return nil, nil, err
	}
	return local, func() { local.Close() }, nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
