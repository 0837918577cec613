package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MeKo-Tech/litelens/internal/config"
	"github.com/MeKo-Tech/litelens/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket frame analysis server",
	Long: `Start an HTTP server that accepts camera frames and publishes analysis
results.

The server provides the following endpoints:
  POST   /frames               - Submit one frame (multipart "image" or raw body)
  GET    /ws/camera            - Stream frames and receive state updates
  GET    /state                - Current result snapshot
  POST   /mode                 - Switch between object and text mode
  PUT    /viewport             - Set the preview size the crop box refers to
  POST   /sheet/dismiss        - Dismiss the result sheet
  GET    /searches             - List saved searches
  POST   /searches             - Save the current result
  GET    /health, /metrics     - Health check and Prometheus metrics

Examples:
  litelens serve
  litelens serve --port 8080
  litelens serve --host 0.0.0.0 --mode text --target de`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		applyServeFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runServer(cmd.Context(), &cfg)
	},
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Server.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.Server.Port, _ = f.GetInt("port")
	}
	if f.Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = f.GetString("cors-origin")
	}
	if f.Changed("max-frame-size") {
		cfg.Server.MaxFrameMB, _ = f.GetInt("max-frame-size")
	}
	if f.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = f.GetInt("shutdown-timeout")
	}
	if f.Changed("target") {
		cfg.Text.TargetLanguage, _ = f.GetString("target")
	}
	if f.Changed("threshold") {
		cfg.Object.ConfidenceThreshold, _ = f.GetFloat64("threshold")
	}
	if f.Changed("rate-limit-enabled") {
		cfg.Server.RateLimitEnabled, _ = f.GetBool("rate-limit-enabled")
	}
	if f.Changed("requests-per-minute") {
		cfg.Server.RequestsPerMinute, _ = f.GetInt("requests-per-minute")
	}
	if f.Changed("requests-per-hour") {
		cfg.Server.RequestsPerHour, _ = f.GetInt("requests-per-hour")
	}
	if f.Changed("max-requests-per-day") {
		cfg.Server.MaxRequestsPerDay, _ = f.GetInt("max-requests-per-day")
	}
	if f.Changed("max-data-per-day") {
		cfg.Server.MaxDataPerDay, _ = f.GetInt64("max-data-per-day")
	}
}

func runServer(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	searches, err := openSearches(cfg)
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}
	defer func() { _ = searches.Close() }()

	srv, err := server.NewServer(cfg.ToServerConfig(), a.analyzer, searches)
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	// WebSocket handlers run on hijacked connections that Shutdown does not
	// track; cancelling the base context ends them.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting litelens server", "addr", addr, "mode", a.state.Mode())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			slog.Error("Server error", "error", err)
			_ = a.Close(context.Background())
			return err
		}
	}

	timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	cancelBase()

	if err := a.Close(shutdownCtx); err != nil {
		slog.Error("Analyzer shutdown error", "error", err)
		return err
	}
	slog.Info("Graceful shutdown completed")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	d := config.DefaultConfig()
	serveCmd.Flags().StringP("host", "H", d.Server.Host, "server host")
	serveCmd.Flags().IntP("port", "p", d.Server.Port, "server port")
	serveCmd.Flags().String("cors-origin", d.Server.CORSOrigin, "CORS allowed origins")
	serveCmd.Flags().Int("max-frame-size", d.Server.MaxFrameMB, "maximum frame upload size in MB")
	serveCmd.Flags().Int("shutdown-timeout", d.Server.ShutdownTimeout, "shutdown timeout in seconds")
	serveCmd.Flags().String("target", d.Text.TargetLanguage, "translation target language (code or name)")
	serveCmd.Flags().Float64("threshold", d.Object.ConfidenceThreshold, "minimum object confidence (0..1)")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", d.Server.RateLimitEnabled, "enable rate limiting of frame uploads")
	serveCmd.Flags().Int("requests-per-minute", d.Server.RequestsPerMinute, "maximum frames per minute per client")
	serveCmd.Flags().Int("requests-per-hour", d.Server.RequestsPerHour, "maximum frames per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", d.Server.MaxRequestsPerDay, "maximum frames per day per client")
	serveCmd.Flags().Int64("max-data-per-day", d.Server.MaxDataPerDay, "maximum frame bytes per day per client")
}
