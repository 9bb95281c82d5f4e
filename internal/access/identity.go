// Package access は認可の判定（ロール、所有者判定、ルートごとの要件）を一か所にまとめます。
package access

import "github.com/gin-gonic/gin"

// Role は利用者の権限です。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole は文字列をロールに変換します。空文字は RoleUser として扱います。
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "", RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Identity はセッションに保存されるログイン中の利用者です。
type Identity struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsAdmin は管理者かどうかを返します。nil は匿名です。
func IsAdmin(id *Identity) bool {
	return id != nil && id.Role == RoleAdmin
}

// CanManage は id が ownerID の資源を変更・削除できるかを返します。
func CanManage(id *Identity, ownerID int64) bool {
	if id == nil {
		return false
	}
	return IsAdmin(id) || id.ID == ownerID
}

// ContextIdentityKey はハンドラー間でログイン中の利用者を共有するためのキーです。
const ContextIdentityKey = "access.identity"

// SetIdentity は gin.Context に利用者を保存します。
func SetIdentity(c *gin.Context, id *Identity) {
	c.Set(ContextIdentityKey, id)
}

// FromContext は保存された利用者を返します。未ログインの場合は nil です。
func FromContext(c *gin.Context) *Identity {
	v, ok := c.Get(ContextIdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}
