// Package users は利用者登録と初期管理者の作成を提供します。
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/umoar/publicaciones/internal/access"
	"github.com/umoar/publicaciones/internal/apperr"
	"github.com/umoar/publicaciones/internal/auth"
	"github.com/umoar/publicaciones/internal/config"
	"github.com/umoar/publicaciones/internal/logging"
	"github.com/umoar/publicaciones/internal/store"
)

// Repository は利用者の保存先です。*store.UserRepository が実装します。
type Repository interface {
	Create(ctx context.Context, user *store.User) (*store.User, error)
}

// RegisterRequest は登録フォームの内容です。Role が空なら一般利用者になります。
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Service は利用者登録の業務ロジックです。
type Service struct {
	repo      Repository
	domain    string
	ioTimeout time.Duration
	log       logging.Logger
}

// NewService は Service を作成します。
func NewService(repo Repository, cfg *config.Config, log logging.Logger) *Service {
	ioTimeout := cfg.IOTimeout
	if ioTimeout <= 0 {
		ioTimeout = 10 * time.Second
	}
	return &Service{
		repo:      repo,
		domain:    cfg.InstitutionalDomain,
		ioTimeout: ioTimeout,
		log:       log.With("module", "users"),
	}
}

// Register は利用者を登録します。
// 管理者の作成は管理者だけが行えます。caller が nil の場合は匿名の自己登録です。
func (s *Service) Register(ctx context.Context, caller *access.Identity, req RegisterRequest) (*access.Identity, error) {
	name := strings.TrimSpace(req.Name)
	email := auth.NormalizeEmail(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return nil, apperr.ErrMissingRequiredField
	}
	if !auth.HasDomain(email, s.domain) {
		return nil, apperr.ErrInvalidDomain
	}
	if err := auth.CheckPasswordStrength(req.Password); err != nil {
		return nil, err
	}

	role, ok := access.ParseRole(strings.TrimSpace(req.Role))
	if !ok {
		return nil, apperr.New(apperr.KindMissingRequiredField, "Rol inválido", nil)
	}
	if role == access.RoleAdmin && !access.IsAdmin(caller) {
		return nil, apperr.ErrForbidden
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.ioTimeout)
	defer cancel()

	user, err := s.repo.Create(ctx, &store.User{
		FullName:     name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.ErrDuplicateEmail
		}
		s.log.Error(ctx, "create user failed", "error", err)
		return nil, apperr.Persistence(err)
	}

	var by int64
	if caller != nil {
		by = caller.ID
	}
	s.log.Info(ctx, "user registered", "user_id", user.ID, "role", string(role), "by", by)
	return user.Identity(), nil
}

// EnsureBootstrapAdmin は管理者が 1 人もいない場合に設定の管理者を作成します。
// メールアドレスかパスワードが未設定なら何もしません。作成した場合は true を返します。
func EnsureBootstrapAdmin(ctx context.Context, db *sql.DB, cfg *config.Config, log logging.Logger) (bool, error) {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		return false, nil
	}

	email := auth.NormalizeEmail(cfg.BootstrapAdminEmail)
	if !auth.HasDomain(email, cfg.InstitutionalDomain) {
		return false, fmt.Errorf("bootstrap admin email %q is outside %s", email, cfg.InstitutionalDomain)
	}
	if err := auth.CheckPasswordStrength(cfg.BootstrapAdminPassword); err != nil {
		return false, fmt.Errorf("bootstrap admin password: %w", err)
	}

	name := strings.TrimSpace(cfg.BootstrapAdminName)
	if name == "" {
		name = "Administrador"
	}

	created := false
	err := store.WithTx(ctx, db, func(ctx context.Context, tx store.DBTX) error {
		repo := store.NewUserRepository(tx)

		n, err := repo.CountAdmins(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
		if err != nil {
			return err
		}
		if _, err := repo.Create(ctx, &store.User{
			FullName:     name,
			Email:        email,
			PasswordHash: hash,
			Role:         access.RoleAdmin,
		}); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return fmt.Errorf("bootstrap admin %s already exists as a regular user", email)
			}
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if created {
		log.Info(ctx, "bootstrap admin created", "email", email)
	}
	return created, nil
}
