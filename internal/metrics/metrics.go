package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Core synchronization primitives
	initOnce    sync.Once
	serverMutex sync.Mutex
	currentSrv  *http.Server
)

// Init initializes all metrics subsystems and registers them with Prometheus
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initCleanupMetrics()
		registerCleanupMetrics()

		// Appear in /metrics before the first sweep finishes
		CleanupLastRunTimestamp.Set(0)
	})
}

// StartServer exposes /metrics and /health on addr for the duration of a
// long sweep. It returns once the listener goroutine is running.
func StartServer(addr string, logger zerolog.Logger) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv != nil {
		logger.Warn().Str("addr", currentSrv.Addr).Msg("metrics server already running")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","healthy":true}`))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	currentSrv = srv

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// Shutdown gracefully shuts down the metrics server
func Shutdown(ctx context.Context, logger zerolog.Logger) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv == nil {
		return
	}

	if err := currentSrv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	currentSrv = nil
}

// WriteTextfile dumps every registered metric to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
