package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"banana/storage-api/app"
	"banana/storage-api/config"
	"banana/storage-api/internal"
	"banana/storage-api/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		zap.L().Fatal("Server failed", zap.Error(err))
	}

	zap.L().Sync()
}

func run() error {
	// Replaced once the configured level is known
	if err := app.MakeLogger("info"); err != nil {
		return err
	}

	err := config.Setup()
	if err != nil {
		return err
	}

	cfg := config.Load()

	if err := app.MakeLogger(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to create logger, %w", err)
	}

	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	secret, err := security.LoadSecret(cfg.Secret, cfg.SecretFile)
	if err != nil {
		return fmt.Errorf("failed to load token secret, %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := internal.NewDeps(ctx, cfg, secret)
	if err != nil {
		return err
	}
	defer d.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.NewRouter(cfg, d),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("Server starting", zap.Int("port", cfg.Port), zap.Bool("ssl", cfg.SSL), zap.String("data_dir", cfg.DataDir))

		if cfg.SSL {
			errCh <- srv.ListenAndServeTLS(cfg.CertPath, cfg.CertKey)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		zap.L().Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
