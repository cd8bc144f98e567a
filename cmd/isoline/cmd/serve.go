package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/isoline/internal/config"
	"github.com/MeKo-Tech/isoline/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the contouring API",
	Long: `Start an HTTP server that contours uploaded rasters.

The server provides the following endpoints:
  POST /contour     - Contour an uploaded raster (multipart field "raster")
  GET  /ws/contour  - WebSocket streaming polylines as they are completed
  GET  /health      - Health check endpoint
  GET  /metrics     - Prometheus metrics

Examples:
  isoline serve
  isoline serve --port 8080
  isoline serve --host 0.0.0.0 --port 3000 --requests-per-minute 30`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		serverConfig, shutdownTimeout := configToServerConfig(cfg, cmd)

		if serverConfig.Port < 1 || serverConfig.Port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", serverConfig.Port)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		contourServer, err := server.NewServer(serverConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		mux := http.NewServeMux()
		contourServer.SetupRoutes(mux)

		// Request deadlines are enforced per request; WebSocket connections
		// manage their own read and write deadlines.
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			slog.Info("Starting contour server", "host", serverConfig.Host, "port", serverConfig.Port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
			return err
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// configToServerConfig applies changed serve flags on top of the
// configuration and returns the server settings and the shutdown timeout.
func configToServerConfig(cfg *config.Config, cmd *cobra.Command) (server.Config, int) {
	flags := cmd.Flags()
	s := &cfg.Server

	if flags.Changed("host") {
		s.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		s.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cors-origin") {
		s.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Changed("max-upload-size") {
		s.MaxUploadMB, _ = flags.GetInt("max-upload-size")
	}
	if flags.Changed("timeout") {
		s.TimeoutSec, _ = flags.GetInt("timeout")
	}
	if flags.Changed("shutdown-timeout") {
		s.ShutdownTimeout, _ = flags.GetInt("shutdown-timeout")
	}
	if flags.Changed("progress-every") {
		s.ProgressEvery, _ = flags.GetInt("progress-every")
	}

	// Rate limiting
	if flags.Changed("requests-per-minute") {
		s.RequestsPerMinute, _ = flags.GetInt("requests-per-minute")
	}
	if flags.Changed("requests-per-hour") {
		s.RequestsPerHour, _ = flags.GetInt("requests-per-hour")
	}
	if flags.Changed("requests-per-day") {
		s.RequestsPerDay, _ = flags.GetInt("requests-per-day")
	}
	if flags.Changed("max-data-per-day") {
		s.MaxDataPerDayMB, _ = flags.GetInt("max-data-per-day")
	}

	// Default levels for requests that do not choose their own
	if flags.Changed("interval") {
		cfg.Contour.Interval, _ = flags.GetFloat64("interval")
		cfg.Contour.FixedLevels = nil
	}

	serverConfig := cfg.ToServerConfig()
	serverConfig.Logger = slog.Default()
	return serverConfig, s.ShutdownTimeout
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Int("progress-every", 64, "rows between WebSocket progress messages")
	serveCmd.Flags().Float64P("interval", "i", 10, "default contour interval for requests")
	// Rate limiting flags; zero disables a limit
	serveCmd.Flags().Int("requests-per-minute", 0, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 0, "maximum requests per hour per client")
	serveCmd.Flags().Int("requests-per-day", 0, "maximum requests per day per client")
	serveCmd.Flags().Int("max-data-per-day", 0, "maximum uploaded MB per day per client")
}
