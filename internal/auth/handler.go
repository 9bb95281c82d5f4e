package auth

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/umoar/publicaciones/internal/access"
	"github.com/umoar/publicaciones/internal/apperr"
	"github.com/umoar/publicaciones/internal/store"
)

var errInvalidCredentials = apperr.New(apperr.KindUnauthenticated, "Correo o contraseña incorrectos", nil)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login は POST /api/session のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		m.respondWithError(c, apperr.ErrMissingRequiredField)
		return
	}

	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		m.respondWithError(c, apperr.ErrMissingRequiredField)
		return
	}
	if !HasDomain(email, m.domain) {
		m.respondWithError(c, apperr.ErrInvalidDomain)
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()

	retryAfter, err := m.throttle.Locked(ctx, ip)
	if err != nil {
		// 制限状態を読めない場合もログインは止めない
		m.log.Warn(ctx, "login throttle unavailable", "error", err)
	}
	if retryAfter > 0 {
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds())+1, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "Demasiados intentos. Intente de nuevo más tarde",
		})
		return
	}

	user, err := m.findUser(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		m.respondWithError(c, apperr.Persistence(err))
		return
	}
	if user == nil || !VerifyPassword(user.PasswordHash, req.Password) {
		remaining, ferr := m.throttle.Fail(ctx, ip)
		if ferr != nil {
			m.log.Warn(ctx, "record login failure", "error", ferr)
		}
		m.log.Info(ctx, "login failed", "ip", ip)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":              string(errInvalidCredentials.Kind),
			"message":           errInvalidCredentials.Message,
			"remainingAttempts": remaining,
		})
		return
	}

	if err := m.throttle.Reset(ctx, ip); err != nil {
		m.log.Warn(ctx, "reset login failures", "error", err)
	}

	identity := user.Identity()
	if err := m.StartSession(c, identity); err != nil {
		m.respondWithError(c, err)
		return
	}

	m.log.Info(ctx, "login succeeded", "user_id", identity.ID)
	c.JSON(http.StatusOK, identity)
}

// Logout は DELETE /api/session のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "No se pudo cerrar la sesión",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// Current は GET /api/session のハンドラーです。ログイン中の利用者を返します。
func (m *Manager) Current(c *gin.Context) {
	identity := access.FromContext(c)
	if identity == nil {
		m.respondWithError(c, apperr.ErrUnauthenticated)
		return
	}
	if token, ok := sessions.Default(c).Get(sessionKeyCSRF).(string); ok {
		c.Header(csrfHeader, token)
	}
	c.JSON(http.StatusOK, identity)
}

// StartSession は identity でセッションを開始し、CSRF トークンをヘッダーで返します。
func (m *Manager) StartSession(c *gin.Context, identity *access.Identity) error {
	session := sessions.Default(c)
	token, err := writeIdentity(session, identity, m.now())
	if err != nil {
		return apperr.New(apperr.KindPersistenceFailure, "No se pudo iniciar la sesión", err)
	}
	if err := session.Save(); err != nil {
		return apperr.New(apperr.KindPersistenceFailure, "No se pudo iniciar la sesión", err)
	}

	access.SetIdentity(c, identity)
	c.Header(csrfHeader, token)
	return nil
}

