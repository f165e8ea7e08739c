package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"secure-pastebox/internal/platform/config"

	"google.golang.org/grpc/credentials"
)

// LoadTLSConfig 載入伺服器憑證，未啟用時回傳 nil
// 提供 CA 檔案時要求並驗證客戶端憑證
func LoadTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	// 載入服務器憑證和私鑰
	serverCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		MinVersion:   tls.VersionTLS12, // 最低 TLS 1.2
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}

	if cfg.CAFile != "" {
		ca, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf("failed to append CA certificate")
		}
		tlsConfig.ClientCAs = certPool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsConfig, nil
}

// LoadTLSCredentials 載入 gRPC 傳輸憑證，未啟用時回傳 nil
func LoadTLSCredentials(cfg config.TLSConfig) (credentials.TransportCredentials, error) {
	tlsConfig, err := LoadTLSConfig(cfg)
	if err != nil || tlsConfig == nil {
		return nil, err
	}
	return credentials.NewTLS(tlsConfig), nil
}
