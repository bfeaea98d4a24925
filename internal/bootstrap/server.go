package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func DefaultServerConfig(port string) ServerConfig {
	if port == "" {
		port = "3000"
	}
	return ServerConfig{
		Port:            port,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// StartHTTPServer serves router until SIGINT/SIGTERM, then drains in-flight
// requests and runs onShutdown hooks in order.
func StartHTTPServer(
	router *gin.Engine,
	cfg ServerConfig,
	auditLogger AuditLogger,
	onShutdown ...func(context.Context) error,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, router, cfg, auditLogger, onShutdown...)
}

// Serve is StartHTTPServer with the stop signal supplied by ctx.
func Serve(
	ctx context.Context,
	router http.Handler,
	cfg ServerConfig,
	auditLogger AuditLogger,
	onShutdown ...func(context.Context) error,
) error {
	logger := zap.L().Named("bootstrap.server")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server running", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("ListenAndServe error", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received")
	auditLogger.Log(context.Background(), AuditLog{
		Action:  "SERVER_SHUTDOWN",
		Message: "Server is shutting down",
		Meta:    map[string]any{"port": cfg.Port},
	})

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
		shutdownErr = err
	} else {
		logger.Info("Server exited gracefully")
	}
	for _, hook := range onShutdown {
		if err := hook(shutdownCtx); err != nil {
			logger.Warn("shutdown hook failed", zap.Error(err))
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}
	return shutdownErr
}
