package main

import (
	"context"
	"fmt"

	"github.com/umoar/publicaciones/internal/auth"
	"github.com/umoar/publicaciones/internal/config"
	"github.com/umoar/publicaciones/internal/logging"
	"github.com/umoar/publicaciones/internal/storage"
)

// newBlobStore は設定に応じたファイル保存先を作成します。
func newBlobStore(ctx context.Context, cfg *config.Config) (storage.Blob, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal:
		return storage.NewLocalStorage(cfg.UploadDir)
	case config.StorageS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newThrottle はログイン試行制限を作成します。
// Redis の URL が設定されていれば複数プロセスで共有し、なければプロセス内で管理します。
func newThrottle(ctx context.Context, cfg *config.Config, log logging.Logger) (auth.Throttle, func(), error) {
	if cfg.RateLimitRedisURL == "" {
		log.Info(ctx, "login throttle uses process memory")
		return auth.NewMemoryThrottle(), func() {}, nil
	}

	throttle, err := auth.NewRedisThrottleFromURL(ctx, cfg.RateLimitRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("login throttle: %w", err)
	}
	log.Info(ctx, "login throttle uses redis")
	return throttle, func() { _ = throttle.Close() }, nil
}
