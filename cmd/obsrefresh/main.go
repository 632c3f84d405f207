// Command obsrefresh reloads an OBS browser source whenever the caption
// snapshot changes.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"scanner-caption-service/internal/app"
	"scanner-caption-service/internal/config"
	"scanner-caption-service/internal/obs"
	"scanner-caption-service/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	mode := flag.String("mode", cfg.OBS.Mode, "trigger mode: watch, poll or interval")
	file := flag.String("file", cfg.OBS.File, "snapshot file to watch")
	source := flag.String("source", cfg.OBS.Source, "OBS browser source name")
	interval := flag.Duration("interval", cfg.OBS.Interval, "poll/interval period")
	flag.Parse()

	cfg.OBS.Mode = *mode
	cfg.OBS.File = *file
	cfg.OBS.Source = *source
	cfg.OBS.Interval = *interval

	application := app.New(cfg)
	logger := logging.WithComponent("obsrefresh")

	if err := cfg.ValidateOBS(); err != nil {
		logger.Error().Err(err).Msg("Invalid OBS configuration")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refresher := obs.NewRefresher(obs.Config{
		Host:     cfg.OBS.Host,
		Port:     cfg.OBS.Port,
		Password: cfg.OBS.Password,
	}, cfg.OBS.Source)
	defer refresher.Close()

	logger.Info().
		Str("mode", cfg.OBS.Mode).
		Str("file", cfg.OBS.File).
		Str("source", cfg.OBS.Source).
		Msg("Refreshing OBS browser source")

	err := obs.Run(ctx, obs.WatchConfig{
		Mode:     cfg.OBS.Mode,
		File:     cfg.OBS.File,
		Interval: cfg.OBS.Interval,
		Debounce: cfg.OBS.Debounce,
	}, refresher.Refresh)
	if err != nil && !errors.Is(err, context.Canceled) {
		application.CaptureError(err)
		logger.Error().Err(err).Msg("OBS refresh stopped")
		application.Shutdown()
		os.Exit(1)
	}
	application.Shutdown()
}
