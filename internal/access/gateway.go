package access

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/umoar/publicaciones/internal/apperr"
)

// State はリクエスト元の認証状態です。
type State int

const (
	Anonymous State = iota
	AuthenticatedUser
	AuthenticatedAdmin
)

func (s State) String() string {
	switch s {
	case AuthenticatedUser:
		return "user"
	case AuthenticatedAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

// StateOf は利用者から状態を求めます。
func StateOf(id *Identity) State {
	switch {
	case id == nil:
		return Anonymous
	case IsAdmin(id):
		return AuthenticatedAdmin
	default:
		return AuthenticatedUser
	}
}

// Requirement はルートが要求する状態です。
type Requirement int

const (
	RequireLogin Requirement = iota + 1
	RequireAdmin
)

// Rule はメソッドとパス接頭辞に要件を結び付けます。
// Method が空の場合はすべてのメソッドに一致します。
// Prefix が "/" で終わる場合はその配下のみ、それ以外は完全一致か "/" 区切りの配下に一致します。
type Rule struct {
	Method      string
	Prefix      string
	Requirement Requirement
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	if strings.HasSuffix(r.Prefix, "/") {
		return strings.HasPrefix(path, r.Prefix)
	}
	return path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/")
}

// Decision はゲートウェイの判定結果です。
type Decision int

const (
	Allow Decision = iota
	RedirectToLogin
	RedirectToLanding
)

// 既定の遷移先
const (
	DefaultLoginPath   = "/login"
	DefaultLandingPath = "/home"
)

// Gateway は保護対象ルートの前段で認証状態を検査します。
type Gateway struct {
	rules       []Rule
	loginPath   string
	landingPath string
}

// NewGateway は Gateway を作成します。先に登録したルールが優先されます。
func NewGateway(rules []Rule) *Gateway {
	return &Gateway{
		rules:       rules,
		loginPath:   DefaultLoginPath,
		landingPath: DefaultLandingPath,
	}
}

// DefaultRules は API の保護対象を返します。
// allowSelfRegistration が false の場合、利用者登録は管理者のみ行えます。
func DefaultRules(allowSelfRegistration bool) []Rule {
	rules := []Rule{
		{Method: http.MethodPost, Prefix: "/api/publications", Requirement: RequireLogin},
		{Method: http.MethodPatch, Prefix: "/api/publications/", Requirement: RequireLogin},
		{Method: http.MethodDelete, Prefix: "/api/publications/", Requirement: RequireLogin},
		{Method: http.MethodGet, Prefix: "/api/dashboard/", Requirement: RequireLogin},
	}
	if !allowSelfRegistration {
		rules = append(rules, Rule{Method: http.MethodPost, Prefix: "/api/users", Requirement: RequireAdmin})
	}
	return rules
}

// Decide はリクエストを通すかどうかを判定します。
// 最初に一致したルールだけが評価されます。
func (g *Gateway) Decide(method, path string, id *Identity) Decision {
	for _, rule := range g.rules {
		if !rule.matches(method, path) {
			continue
		}
		state := StateOf(id)
		if state == Anonymous {
			return RedirectToLogin
		}
		if rule.Requirement == RequireAdmin && state != AuthenticatedAdmin {
			return RedirectToLanding
		}
		return Allow
	}
	return Allow
}

// Middleware は gin のミドルウェアを返します。
// 利用者の解決は前段のセッションミドルウェアが済ませている前提です。
func (g *Gateway) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch g.Decide(c.Request.Method, c.Request.URL.Path, FromContext(c)) {
		case RedirectToLogin:
			if prefersHTML(c.Request) {
				c.Redirect(http.StatusSeeOther, g.loginPath)
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(apperr.Describe(apperr.ErrUnauthenticated))
		case RedirectToLanding:
			if prefersHTML(c.Request) {
				c.Redirect(http.StatusSeeOther, g.landingPath)
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(apperr.Describe(apperr.ErrForbidden))
		default:
			c.Next()
		}
	}
}

// prefersHTML はブラウザの画面遷移かどうかを Accept ヘッダーで判定します。
func prefersHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
