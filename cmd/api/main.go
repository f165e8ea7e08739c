package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"secure-pastebox/internal/keys"
	"secure-pastebox/internal/platform/config"
	"secure-pastebox/internal/platform/driver"
	"secure-pastebox/internal/platform/health"
	"secure-pastebox/internal/platform/logger"
	"secure-pastebox/internal/platform/middleware"
	"secure-pastebox/internal/platform/server"
	"secure-pastebox/internal/security/audit"
	"secure-pastebox/internal/security/encryption"
	"secure-pastebox/internal/security/keymanager"
	"secure-pastebox/internal/storage/keystore"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// keyRotationCheckInterval 檢查活躍密鑰是否到期的週期
const keyRotationCheckInterval = time.Hour

func main() {
	if err := mainNoExit(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// mainNoExit 分離主要邏輯以避免 exitAfterDefer 問題，確保 defer 函數正常執行.
func mainNoExit() error {
	// 載入配置.
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()

	// 初始化日誌（輪轉設定來自配置）.
	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	// 等待中斷信號
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[System] 正在啟動 SecurePasteBox", logger.WithDetails(map[string]interface{}{
		"env":     config.GetEnv(),
		"backend": string(cfg.KeyStorage.Type),
	}))

	if !config.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 只有 Mongo 後端需要資料庫連接.
	var db *mongo.Database
	if cfg.KeyStorage.Type == config.KeyStorageMongo {
		var err error
		db, err = driver.ConnectMongo(ctx)
		if err != nil {
			logger.Error(ctx, "資料庫連接失敗", logger.WithError(err))
			return fmt.Errorf("database initialization failed")
		}
		defer func() {
			if err := driver.CloseMongo(); err != nil {
				logger.Errorf(context.Background(), "關閉 MongoDB 連接失敗: %v", err)
			}
		}()
	}

	auditService := audit.NewAuditService(cfg.Security.Audit.Enabled)

	store, reaper, err := keystore.New(ctx, cfg, db, nil)
	if err != nil {
		logger.Error(ctx, "密鑰儲存後端初始化失敗", logger.WithError(err))
		return fmt.Errorf("key storage initialization failed")
	}

	healthHandler := health.NewHealthHandler(cfg.App.Name, config.IsDebug(), store)

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// 靜態加密
	var protector keys.Protector = keys.NopProtector{}
	if cfg.DataProtection.Enabled {
		masterKey, err := keymanager.LoadMasterKey(os.Getenv("MASTER_KEY"))
		if err != nil {
			logger.Error(ctx, "無法載入主密鑰", logger.WithError(err))
			return fmt.Errorf("encryption initialization failed")
		}

		repo, err := keymanager.NewRepository(cfg, db)
		if err != nil {
			logger.Error(ctx, "密鑰環儲存庫建立失敗", logger.WithError(err))
			return fmt.Errorf("encryption initialization failed")
		}

		ring, err := keymanager.NewKeyRing(ctx, repo, keymanager.Options{
			Lifetime:  cfg.DataProtection.KeyLifetime,
			MasterKey: masterKey,
			Audit:     auditService,
		})
		if err != nil {
			logger.Error(ctx, "密鑰管理器創建失敗", logger.WithError(err))
			return fmt.Errorf("encryption initialization failed")
		}

		protector = encryption.NewProtector(ring, cfg.DataProtection.ApplicationName)
		healthHandler.AddSource("keyring", func() interface{} { return ring.Stats() })
		spawn(func() { ring.RunRotation(ctx, keyRotationCheckInterval) })
	} else {
		logger.Warning(ctx, "[WARNING] 資料保護已停用，密鑰將以明文保存")
	}

	custodian := keys.NewCustodian(store, protector, keys.Options{
		DefaultExpiration: cfg.KeyStorage.DefaultExpiration,
		MaxExpiration:     cfg.KeyStorage.MaxExpiration,
		MaxKeyLength:      cfg.Limits.MaxKeyLength,
		Audit:             auditService,
	})
	healthHandler.AddSource("custodian", func() interface{} { return custodian.Stats() })

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.MinInterval, cfg.RateLimit.BucketIdleTTL, auditService)
	healthHandler.AddSource("rate_limiter", func() interface{} { return rateLimiter.Stats() })
	spawn(func() { rateLimiter.RunJanitor(ctx) })

	if reaper != nil {
		healthHandler.AddSource("reaper", func() interface{} { return reaper.Stats() })
		spawn(func() { reaper.Run(ctx) })
	}

	// 啟動 gRPC 健康檢查服務器
	errCh := make(chan error, 2)
	if cfg.GRPC.Enabled {
		grpcHealth, err := server.NewHealthServer(cfg.Security.TLS, store)
		if err != nil {
			logger.Error(ctx, "gRPC 服務器創建失敗", logger.WithError(err))
			return fmt.Errorf("server initialization failed")
		}
		spawn(func() {
			if err := grpcHealth.Start(ctx, cfg.GRPC.Port); err != nil {
				errCh <- fmt.Errorf("grpc health server: %w", err)
			}
		})
	}

	// 啟動 HTTP 服務器
	router := server.Router(server.Dependencies{
		Custodian:      custodian,
		RateLimiter:    rateLimiter,
		Health:         healthHandler,
		MaxBodySize:    cfg.Limits.MaxBodySize,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	spawn(func() {
		if err := server.Start(ctx, cfg, router); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	})

	logger.Info(ctx, "[System] 服務器啟動完成")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error(context.Background(), "服務器異常退出", logger.WithError(runErr))
		stop()
	}

	logger.Info(context.Background(), "正在關閉服務器...", logger.WithAction("shutdown"))
	wg.Wait()

	return runErr
}
