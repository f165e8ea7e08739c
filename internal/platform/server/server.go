package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"secure-pastebox/internal/platform/config"
	"secure-pastebox/internal/platform/logger"
)

const shutdownTimeout = 30 * time.Second

// Start 啟動 HTTP 伺服器，ctx 取消後優雅關閉.
func Start(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	tlsConfig, err := LoadTLSConfig(cfg.Security.TLS)
	if err != nil {
		return err
	}

	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	server := &http.Server{
		Addr:              cfg.Server.GetServerAddr(),
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP 伺服器正在監聽", logger.WithDetails(map[string]interface{}{
			"addr": server.Addr,
			"tls":  tlsConfig != nil,
		}))
		var err error
		if tlsConfig != nil {
			// 憑證已在 TLSConfig 中
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "收到關閉信號，正在優雅關閉伺服器...", logger.WithAction("shutdown"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info(context.Background(), "HTTP 伺服器已優雅關閉")
	return nil
}
