package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/umoar/publicaciones/internal/access"
	"github.com/umoar/publicaciones/internal/auth"
	"github.com/umoar/publicaciones/internal/config"
	"github.com/umoar/publicaciones/internal/logging"
	"github.com/umoar/publicaciones/internal/publication"
	"github.com/umoar/publicaciones/internal/users"
)

// pinger は DB の疎通確認に使います。*sql.DB が満たします。
type pinger interface {
	PingContext(ctx context.Context) error
}

// application はルーティングに必要な依存をまとめたものです。
type application struct {
	cfg          *config.Config
	log          logging.Logger
	db           pinger
	sessions     sessions.Store
	auth         *auth.Manager
	users        *users.Service
	publications *publication.Service
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func (a *application) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		a.log.Warn(ctx, "health check: database unreachable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "degraded",
			"service":  "publicaciones-api",
			"database": "unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "publicaciones-api",
		"database": "ok",
	})
}

// setupRoutes はミドルウェアとルートを登録します。
// 判定の順序はセッション復元、ゲートウェイ、CSRF 検証、ハンドラーです。
func (a *application) setupRoutes(router *gin.Engine) {
	router.Use(sessions.Sessions(auth.SessionCookieName, a.sessions))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitOrigins(a.cfg.CORSAllowedOrigins)
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token", "Retry-After"}
	router.Use(cors.New(corsConfig))

	gateway := access.NewGateway(access.DefaultRules(a.cfg.AllowSelfRegistration))
	router.Use(a.auth.LoadIdentity(), gateway.Middleware())

	// 誰でも叩けるヘルスチェック
	router.GET("/health", a.handleHealth)
	router.GET(publication.URLPrefix+":ref", publication.DownloadHandler(a.publications))

	api := router.Group("/api")
	{
		// ログイン時はセッション未生成なので CSRF 検証は不要
		api.POST("/session", a.auth.Login)
		api.GET("/session", a.auth.Current)
		api.GET("/publications", publication.ListHandler(a.publications, publication.ScopePublic))

		protected := api.Group("")
		protected.Use(a.auth.VerifyCSRF())
		{
			protected.DELETE("/session", a.auth.Logout)
			protected.POST("/users", users.RegisterHandler(a.users, a.auth, a.log))

			protected.GET("/dashboard/publications", publication.ListHandler(a.publications, publication.ScopeOwnerOrAdmin))
			protected.POST("/publications", publication.CreateHandler(a.publications))
			protected.PATCH("/publications/:ref", publication.SetActiveHandler(a.publications))
			protected.DELETE("/publications/:ref", publication.DeleteHandler(a.publications))
		}
	}
}

// splitOrigins はカンマ区切りのオリジンを配列に変換します。
func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
