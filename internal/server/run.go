package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/petergeneric/whisperx-windows-service/internal/config"
	"github.com/petergeneric/whisperx-windows-service/internal/core/engine"
	"github.com/petergeneric/whisperx-windows-service/internal/core/engine/parakeet"
	"github.com/petergeneric/whisperx-windows-service/internal/core/engine/whisperx"
	"github.com/petergeneric/whisperx-windows-service/internal/core/event"
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
	"github.com/petergeneric/whisperx-windows-service/internal/core/queue"
	"github.com/petergeneric/whisperx-windows-service/internal/core/scheduler"
	"github.com/petergeneric/whisperx-windows-service/internal/core/service"
	"github.com/petergeneric/whisperx-windows-service/internal/core/supervisor"
	"github.com/petergeneric/whisperx-windows-service/internal/core/sweeper"
)

const shutdownTimeout = 10 * time.Second

// Run assembles and runs the whole service: HTTP API, scheduler loop and
// expiry sweeper, all under one signal-cancelled group. On shutdown the
// in-flight job (if any) is cancelled via its context; job state is
// in-memory and dies with the process.
func Run(ctx context.Context, cfg *config.Config) error {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	for _, dir := range []string{cfg.Paths.UploadDir, cfg.Paths.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	keyHashes, err := LoadKeys(cfg.Auth.KeyFile)
	if err != nil {
		return err
	}

	registry := engine.NewRegistry()
	registry.Register(whisperx.New(cfg.Tools.WhisperX))
	registry.Register(parakeet.New(cfg.Tools.Python, cfg.Tools.ParakeetScript))
	log.Info().Strs("engines", registry.Names()).Msg("engines registered")

	bus := event.NewBus()
	bus.SubscribeAll(func(e event.Event) {
		log.Debug().
			Str("event", string(e.Type)).
			Str("job_id", e.JobID).
			Str("profile", e.Profile).
			Msg("job lifecycle")
	})

	store := job.NewStore()
	q := queue.New()
	sup := supervisor.New(registry, cfg.Tools.FFmpeg, cfg.Paths.WorkDir)
	sched := scheduler.New(store, q, sup, cfg.Profiles, bus, cfg.PollInterval())
	svc := service.New(store, q, sched, cfg.Profiles, bus)
	sw := sweeper.New(store, svc, bus, cfg.SweepInterval(), cfg.JobTimeout())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	SetupRouter(e, RouterConfig{
		Svc:       svc,
		KeyHashes: keyHashes,
		UploadDir: cfg.Paths.UploadDir,
	})

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sw.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shCtx)
	})

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	return err
}
