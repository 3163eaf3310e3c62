// Package serve runs the audio service until interrupted.
package serve

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiosvc/audiod/internal/api"
	"github.com/audiosvc/audiod/internal/audiograph"
	"github.com/audiosvc/audiod/internal/conf"
	"github.com/audiosvc/audiod/internal/logging"
	"github.com/audiosvc/audiod/internal/observability"
	"github.com/audiosvc/audiod/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the audio service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}
}

func runServer(settings *conf.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	logging.Init(logging.Options{
		Level:      settings.LogLevel(),
		FilePath:   settings.Main.Log.Path,
		MaxSizeMB:  settings.Main.Log.MaxSizeMB,
		MaxBackups: settings.Main.Log.MaxBackups,
		MaxAgeDays: settings.Main.Log.MaxAgeDays,
		JSON:       settings.Main.Log.JSON,
	})
	logger := logging.ForService("serve")

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	module := service.NewModule(settings, audiograph.Primary(), metrics)
	defer module.Shutdown()

	server := api.New(module)
	errCh := make(chan error, 2)
	go func() {
		errCh <- server.Start(settings.Main.APIListen)
	}()

	var metricsSrv *http.Server
	if settings.Main.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{
			Addr:    settings.Main.MetricsListen,
			Handler: mux,
		}
		logger.Info("metrics listening", "addr", settings.Main.MetricsListen)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("api shutdown failed", "error", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Error("metrics shutdown failed", "error", err)
		}
	}
	return nil
}
