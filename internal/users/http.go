package users

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umoar/publicaciones/internal/access"
	"github.com/umoar/publicaciones/internal/apperr"
	"github.com/umoar/publicaciones/internal/logging"
)

// Registrar は登録を提供します。
type Registrar interface {
	Register(ctx context.Context, caller *access.Identity, req RegisterRequest) (*access.Identity, error)
}

// SessionStarter は登録直後のログインを行います。*auth.Manager が実装します。
type SessionStarter interface {
	StartSession(c *gin.Context, identity *access.Identity) error
}

// RegisterHandler は POST /api/users のハンドラーを返します。
// 匿名での自己登録はそのままログイン状態にし、管理者による作成では管理者のセッションを維持します。
func RegisterHandler(svc Registrar, sessions SessionStarter, log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperr.ErrMissingRequiredField)
			return
		}

		caller := access.FromContext(c)
		identity, err := svc.Register(c.Request.Context(), caller, req)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if caller == nil {
			if err := sessions.StartSession(c, identity); err != nil {
				// 登録自体は完了しているので、ログインは利用者にやり直してもらう
				log.Warn(c.Request.Context(), "auto login after registration failed", "user_id", identity.ID, "error", err)
			}
		}
		c.JSON(http.StatusCreated, identity)
	}
}

func respondWithError(c *gin.Context, err error) {
	status, body := apperr.Describe(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}
