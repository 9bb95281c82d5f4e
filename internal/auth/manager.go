// Package auth はログイン、セッション管理、CSRF 検証を提供します。
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/umoar/publicaciones/internal/apperr"
	"github.com/umoar/publicaciones/internal/config"
	"github.com/umoar/publicaciones/internal/logging"
	"github.com/umoar/publicaciones/internal/store"
)

// UserFinder はメールアドレスから利用者を引きます。
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*store.User, error)
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	domain    string
	ioTimeout time.Duration
	users     UserFinder
	throttle  Throttle
	log       logging.Logger
	now       func() time.Time
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, users UserFinder, throttle Throttle, log logging.Logger) *Manager {
	ioTimeout := cfg.IOTimeout
	if ioTimeout <= 0 {
		ioTimeout = 10 * time.Second
	}
	return &Manager{
		domain:    cfg.InstitutionalDomain,
		ioTimeout: ioTimeout,
		users:     users,
		throttle:  throttle,
		log:       log.With("module", "auth"),
		now:       time.Now,
	}
}

func (m *Manager) findUser(ctx context.Context, email string) (*store.User, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ioTimeout)
	defer cancel()
	return m.users.FindByEmail(ctx, email)
}

func (m *Manager) respondWithError(c *gin.Context, err error) {
	status, body := apperr.Describe(err)
	if status >= http.StatusInternalServerError {
		m.log.Error(c.Request.Context(), "auth request failed", "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

