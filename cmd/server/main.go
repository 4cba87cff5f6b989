// Platform server - drives the voice session loop, the analysis oracle, and
// the WebSocket control surface
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

	"golang.org/x/sync/errgroup"

	"github.com/sageorb/platform/internal/ambient"
	"github.com/sageorb/platform/internal/audio"
	"github.com/sageorb/platform/internal/config"
	"github.com/sageorb/platform/internal/mode"
	"github.com/sageorb/platform/internal/oracle"
	"github.com/sageorb/platform/internal/resilience"
	"github.com/sageorb/platform/internal/server"
	"github.com/sageorb/platform/internal/session"
	"github.com/sageorb/platform/internal/session/history"
)

// noopAmbient satisfies the machine when ambient audio is disabled.
type noopAmbient struct{}

func (noopAmbient) PlayMood(string)       {}
func (noopAmbient) StartBreathing(string) {}
func (noopAmbient) Stop()                 {}

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Verify the oracle is reachable before taking traffic
	client := oracle.New(cfg.OracleURL, cfg.OracleTimeout)
	err := resilience.Retry(ctx, resilience.ProbeRetryConfig(), func() error {
		return client.Health(ctx)
	})
	if err != nil {
		slog.Error("oracle health probe failed", "url", cfg.OracleURL, "error", err)
		os.Exit(1)
	}

	modes := mode.NewStore(cfg.ModeCachePath, cfg.ModeCacheTTL)
	modes.Load()

	device := audio.NewDevice(cfg.SampleRate)
	defer device.Close()

	var amb session.Ambient = noopAmbient{}
	if cfg.AmbientEnabled {
		player := ambient.NewPlayer(ambient.DeviceOpener(device), cfg.SampleRate, logger)
		defer player.Stop()
		amb = player
	}

	// Speech playback feeds the analyser so the speaking phase stays
	// observable; ambient tones bypass it.
	playback := session.NewPlaybackSequencer(func() (session.Sink, error) {
		return device.OpenOutput(true)
	}, 0)

	journal := history.NewJournal(server.HistoryLimit, server.EventBuffer)

	machine := session.NewMachine(device, client, playback, amb, modes, journal, logger, session.Config{
		SampleRate:       cfg.SampleRate,
		SilenceThreshold: cfg.SilenceThreshold,
		SilenceWindow:    cfg.SilenceWindow,
		TickInterval:     cfg.TickInterval,
	})

	srv := server.New(machine, modes, journal)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := machine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("platform server starting", "http", cfg.HTTPAddr, "oracle", cfg.OracleURL)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
