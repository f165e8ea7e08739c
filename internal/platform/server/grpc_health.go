package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"secure-pastebox/internal/constants"
	"secure-pastebox/internal/platform/config"
	"secure-pastebox/internal/platform/health"
	"secure-pastebox/internal/platform/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer 提供標準 grpc.health.v1 服務，狀態跟隨儲存後端是否可用
type HealthServer struct {
	grpcServer *grpc.Server
	health     *grpchealth.Server
	store      health.Checker
	interval   time.Duration
}

// NewHealthServer 創建 gRPC 健康檢查服務器
func NewHealthServer(tlsConfig config.TLSConfig, store health.Checker) (*HealthServer, error) {
	var opts []grpc.ServerOption

	// 根據 TLS 配置決定是否啟用 TLS
	creds, err := LoadTLSCredentials(tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("TLS 配置失敗: %w", err)
	}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}

	s := &HealthServer{
		grpcServer: grpc.NewServer(opts...),
		health:     grpchealth.NewServer(),
		store:      store,
		interval:   constants.HealthCheckInterval,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(constants.HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return s, nil
}

// Refresh 依儲存後端狀態更新服務狀態
func (s *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	checkCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if !s.store.Available(checkCtx) {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(constants.HealthServiceName, status)
	// 空服務名代表整體狀態
	s.health.SetServingStatus("", status)
	return status
}

// Watch 定期輪詢儲存後端，直到 ctx 取消
func (s *HealthServer) Watch(ctx context.Context) {
	s.Refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if status := s.Refresh(ctx); status != healthpb.HealthCheckResponse_SERVING {
				logger.Warning(ctx, "gRPC 健康狀態：儲存後端不可用", logger.WithBackend(s.store.Name()))
			}
		}
	}
}

// Serve 在 listener 上提供服務，ctx 取消後優雅停止
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	go s.Watch(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	logger.Info(ctx, "gRPC 健康檢查服務器正在監聽", logger.WithDetails(map[string]interface{}{
		"addr":    lis.Addr().String(),
		"service": constants.HealthServiceName,
	}))
	return s.grpcServer.Serve(lis)
}

// Start 在指定端口啟動
func (s *HealthServer) Start(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}
