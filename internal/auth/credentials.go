package auth

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/umoar/publicaciones/internal/apperr"
)

// パスワードの長さ制限。bcrypt は 72 バイトを超える入力を扱えません。
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

// HashPassword は bcrypt でハッシュ化します。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword はハッシュと平文が一致するかを返します。
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CheckPasswordStrength は 8 文字以上で英字と数字を含むことを確認します。
func CheckPasswordStrength(password string) error {
	if len([]rune(password)) < MinPasswordLength || len(password) > MaxPasswordBytes {
		return apperr.ErrWeakPassword
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperr.ErrWeakPassword
	}
	return nil
}

// NormalizeEmail は前後の空白を除き小文字にします。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasDomain は正規化済みのメールアドレスが domain（例: "@umoar.edu.sv"）で終わり、
// ローカル部が空でないことを確認します。
func HasDomain(email, domain string) bool {
	if domain == "" || !strings.HasSuffix(email, domain) {
		return false
	}
	local := strings.TrimSuffix(email, domain)
	return local != "" && !strings.ContainsAny(local, "@ \t")
}
