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

	"github.com/joho/godotenv"

	"github.com/steveyiyo/livetutor/internal/audio/device"
	"github.com/steveyiyo/livetutor/internal/audio/pcm"
	"github.com/steveyiyo/livetutor/internal/config"
	"github.com/steveyiyo/livetutor/internal/core/gemini"
	"github.com/steveyiyo/livetutor/internal/core/live"
	"github.com/steveyiyo/livetutor/internal/core/session"
	"github.com/steveyiyo/livetutor/internal/core/tts"
	"github.com/steveyiyo/livetutor/internal/core/video"
	h "github.com/steveyiyo/livetutor/internal/http"
	"github.com/steveyiyo/livetutor/internal/logging"
	"github.com/steveyiyo/livetutor/internal/metrics"
	"github.com/steveyiyo/livetutor/internal/repo/memory"
	"github.com/steveyiyo/livetutor/pkg/ws"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, closer := logging.New(cfg.LogLevel, cfg.LogFile)
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "err", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return err
	}

	backend, err := device.Open(cfg.AudioBackend)
	if err != nil {
		return err
	}
	defer backend.Close()

	client, err := gemini.New(ctx, cfg.APIKey, gemini.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	var transport live.Transport = client.LiveTransport()
	if cfg.LiveTransport == "ws" {
		transport = gemini.NewLiveClient(cfg.APIKey, gemini.WithLiveLogger(logger))
	}

	hub := ws.NewHub()
	sess := session.NewService(transport, backend, session.Options{
		Model:     cfg.LiveModel,
		Settings:  settings,
		Publisher: hub,
		Logger:    logger,
	})
	defer sess.Disconnect()
	go sess.RunLevels(ctx, 100*time.Millisecond)

	videos := video.NewService(client, memory.NewJobRepo(), logger)
	defer videos.Close()

	var speaker *tts.Speaker
	if out, err := backend.NewOutput(pcm.OutputSampleRate); err != nil {
		logger.Warn("tts playback disabled", "err", err)
	} else {
		defer out.Close()
		speaker = tts.NewSpeaker(out)
	}

	speech, err := tts.NewCache(client, 64)
	if err != nil {
		return err
	}

	r := h.NewRouter(cfg, h.Deps{
		Session:  sess,
		Devices:  backend,
		Hub:      hub,
		Chat:     client,
		TTS:      speech,
		Speaker:  speaker,
		Videos:   videos,
		Download: client,
		Registry: metrics.NewRegistry(),
		Log:      logger,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "transport", cfg.LiveTransport, "audio", cfg.AudioBackend)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	return nil
}
