// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/umoar/publicaciones/internal/auth"
	"github.com/umoar/publicaciones/internal/config"
	"github.com/umoar/publicaciones/internal/logging"
	"github.com/umoar/publicaciones/internal/publication"
	"github.com/umoar/publicaciones/internal/store"
	"github.com/umoar/publicaciones/internal/users"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "publicaciones: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.GinMode == gin.DebugMode {
		level = slog.LevelDebug
	}
	logger := logging.NewJSON(os.Stdout, level)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	db, err := store.Open(ctx, cfg.DatabaseDSN, store.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	if _, err := users.EnsureBootstrapAdmin(ctx, db, cfg, logger); err != nil {
		// 既存データには影響しないため起動は続ける
		logger.Error(ctx, "bootstrap admin not created", "error", err)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	throttle, closeThrottle, err := newThrottle(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeThrottle()

	sessionStore, err := auth.NewCookieStore(cfg.SessionSecret, cfg.SessionSecureCookie)
	if err != nil {
		return err
	}

	app := &application{
		cfg:      cfg,
		log:      logger,
		db:       db,
		sessions: sessionStore,
		auth:     auth.NewManager(cfg, store.NewUserRepository(db), throttle, logger),
		users:    users.NewService(store.NewUserRepository(db), cfg, logger),
		publications: publication.NewService(store.NewPublicationRepository(db), blobs, logger, publication.Options{
			MaxFileSize:         cfg.MaxFileSize,
			IOTimeout:           cfg.IOTimeout,
			HardDeleteAdminOnly: cfg.HardDeleteAdminOnly,
		}),
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	app.setupRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting API server", "addr", srv.Addr, "mode", cfg.GinMode, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info(context.Background(), "server stopped")
	return nil
}
