// Quillbox Server
//
// Features:
// - Password login with JWT sessions and refresh tokens
// - Path-scoped CRUD over a remote SFTP store
// - Share links bound to a single path
// - Authenticated serve/proxy with HTML rewriting
// - SSE real-time change events
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quillbox/quillbox/internal/api"
	"github.com/quillbox/quillbox/internal/config"
	"github.com/quillbox/quillbox/internal/events"
	"github.com/quillbox/quillbox/internal/logging"
	"github.com/quillbox/quillbox/internal/metrics"
	"github.com/quillbox/quillbox/internal/ratelimit"
	"github.com/quillbox/quillbox/internal/sftpgate"
	"github.com/quillbox/quillbox/internal/token"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Quillbox Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Remote store gateway (dials per operation, no pooling)
	gateway := sftpgate.New(sftpgate.Config{
		Host:     cfg.SFTPHost,
		Port:     cfg.SFTPPort,
		User:     cfg.SFTPUser,
		Password: cfg.SFTPPassword,
		Timeout:  cfg.SFTPTimeout,
	})
	if cfg.SFTPHost == "" {
		logging.Warn("SFTP_HOST not set, file operations will report SFTP_NOT_CONFIGURED")
	} else {
		logging.Info("SFTP gateway configured",
			zap.String("host", cfg.SFTPHost),
			zap.Int("port", cfg.SFTPPort),
			zap.String("root", cfg.SFTPRoot))
	}

	tokens := token.NewService(cfg.JWTSecret)

	broadcaster := events.NewBroadcaster()
	logging.Info("SSE broadcaster initialized")

	limiter := ratelimit.NewLimiter()

	srv := api.NewServer(cfg, tokens, gateway, broadcaster, limiter)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	// Drop idle login rate-limit buckets periodically
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(24 * time.Hour)
			}
		}
	}()

	if useTLS {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		if err := httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}
}
