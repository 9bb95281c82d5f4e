package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"golang.org/x/crypto/hkdf"

	"github.com/umoar/publicaciones/internal/access"
)

const (
	SessionCookieName    = "umoar_session"
	sessionKeyUser       = "auth_user"
	sessionKeyName       = "auth_name"
	sessionKeyEmail      = "auth_email"
	sessionKeyRole       = "auth_role"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	csrfHeader = "X-CSRF-Token"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// NewCookieStore は署名と暗号化を行うクッキーストアを作成します。
// 署名鍵と AES-256 鍵は secret から HKDF で個別に導出します。
func NewCookieStore(secret string, secure bool) (sessions.Store, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	hashKey, err := deriveKey(secret, "session-hmac")
	if err != nil {
		return nil, err
	}
	encKey, err := deriveKey(secret, "session-aes")
	if err != nil {
		return nil, err
	}

	store := cookie.NewStore(hashKey, encKey)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	return store, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}

// writeIdentity は利用者をセッションに書き込み、新しい CSRF トークンを返します。
func writeIdentity(session sessions.Session, id *access.Identity, now time.Time) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	session.Clear()
	session.Set(sessionKeyUser, id.ID)
	session.Set(sessionKeyName, id.Name)
	session.Set(sessionKeyEmail, id.Email)
	session.Set(sessionKeyRole, string(id.Role))
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeyCSRF, token)
	return token, nil
}

// readIdentity はセッションから利用者を復元します。未ログインなら nil です。
func readIdentity(session sessions.Session) *access.Identity {
	userID, ok := session.Get(sessionKeyUser).(int64)
	if !ok || userID == 0 {
		return nil
	}
	name, _ := session.Get(sessionKeyName).(string)
	email, _ := session.Get(sessionKeyEmail).(string)
	roleStr, _ := session.Get(sessionKeyRole).(string)

	role, ok := access.ParseRole(roleStr)
	if !ok {
		return nil
	}
	return &access.Identity{ID: userID, Name: name, Email: email, Role: role}
}

// sessionExpired は発行からの経過時間と無操作時間を検査します。
func sessionExpired(session sessions.Session, now time.Time) (bool, string) {
	issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
	lastActive := readUnix(session.Get(sessionKeyLastActive))

	if issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime {
		return true, "lifetime"
	}
	if lastActive.IsZero() || now.Sub(lastActive) > idleTimeout {
		return true, "idle"
	}
	return false, ""
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
