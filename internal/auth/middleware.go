package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/umoar/publicaciones/internal/access"
	"github.com/umoar/publicaciones/internal/apperr"
)

// LoadIdentity はセッションを検証し、有効な場合は利用者を gin.Context に保存するミドルウェアです。
// 未ログインや期限切れでもリクエストは止めず、判定はゲートウェイに任せます。
func (m *Manager) LoadIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		identity := readIdentity(session)
		if identity == nil {
			c.Next()
			return
		}

		now := m.now()
		if expired, reason := sessionExpired(session, now); expired {
			session.Clear()
			_ = session.Save()
			m.log.Info(c.Request.Context(), "session expired", "user_id", identity.ID, "reason", reason)
			c.Next()
			return
		}

		session.Set(sessionKeyLastActive, now.Unix())
		_ = session.Save()
		access.SetIdentity(c, identity)
		c.Next()
	}
}

// RequireLogin はログイン済みでなければ 401 を返すミドルウェアです。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if access.FromContext(c) == nil {
			c.AbortWithStatusJSON(apperr.Describe(apperr.ErrUnauthenticated))
			return
		}
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダーを検証するミドルウェアです。
// ログインしていないリクエストにはトークンが存在しないため検証しません。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) || access.FromContext(c) == nil {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "Falta el token CSRF",
			})
			return
		}

		received := c.GetHeader(csrfHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "El token CSRF no coincide",
			})
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
