package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/umoar/publicaciones/internal/access"
)

// User は users テーブルの 1 行です。
type User struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	Role         access.Role
	CreatedAt    time.Time
}

// Identity はセッションに載せる利用者情報を返します。
func (u *User) Identity() *access.Identity {
	return &access.Identity{ID: u.ID, Name: u.FullName, Email: u.Email, Role: u.Role}
}

// UserRepository は users テーブルを扱います。
type UserRepository struct {
	db DBTX
}

// NewUserRepository は UserRepository を作成します。db には *sql.DB か *sql.Tx を渡します。
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create は利用者を追加します。メールアドレスが重複する場合は ErrDuplicate を返します。
func (r *UserRepository) Create(ctx context.Context, user *User) (*User, error) {
	query :=
		`INSERT INTO users (full_name, email, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.FullName, user.Email, user.PasswordHash, string(user.Role)).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// FindByEmail は正規化済みのメールアドレスで利用者を探します。
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query :=
		`SELECT id, full_name, email, password_hash, role, created_at FROM users
		 WHERE email = $1`

	user := &User{}
	var role string
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.Role = access.Role(role)
	return user, nil
}

// CountAdmins は管理者の人数を返します。
func (r *UserRepository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
