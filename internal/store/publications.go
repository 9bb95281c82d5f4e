package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Publication は publications テーブルの 1 行です。
// UploaderName は登録時点の表示名の写しで、利用者の改名には追従しません。
type Publication struct {
	ID           string    `json:"id"`
	StoredName   string    `json:"ref"`
	OriginalName string    `json:"originalName"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Career       string    `json:"career"`
	Type         string    `json:"type"`
	Description  string    `json:"description,omitempty"`
	SizeBytes    int64     `json:"sizeBytes"`
	Pages        int       `json:"pages"`
	UploaderID   int64     `json:"uploaderId"`
	UploaderName string    `json:"uploaderName"`
	CreatedAt    time.Time `json:"createdAt"`
	IsActive     bool      `json:"isActive"`
}

// ListQuery は一覧の絞り込み条件です。
type ListQuery struct {
	ActiveOnly bool
	UploaderID int64  // 0 の場合は全員
	Search     string // タイトル、著者、学科の部分一致（大文字小文字を区別しない）
}

// PublicationRepository は publications テーブルを扱います。
type PublicationRepository struct {
	db DBTX
}

// NewPublicationRepository は PublicationRepository を作成します。
func NewPublicationRepository(db DBTX) *PublicationRepository {
	return &PublicationRepository{db: db}
}

const publicationColumns = `id, stored_name, original_name, title, author, career, type, description,
	size_bytes, pages, uploader_id, uploader_name, created_at, is_active`

// Insert は公開状態で行を追加し、作成日時を p に反映します。
func (r *PublicationRepository) Insert(ctx context.Context, p *Publication) error {
	query :=
		`INSERT INTO publications (id, stored_name, original_name, title, author, career, type, description,
		 size_bytes, pages, uploader_id, uploader_name, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.StoredName, p.OriginalName, p.Title, p.Author, p.Career, p.Type, nullString(p.Description),
		p.SizeBytes, p.Pages, p.UploaderID, p.UploaderName).Scan(&p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("db error: %w", err)
	}
	p.IsActive = true
	return nil
}

// FindByStoredName は保存名で 1 件取得します。
func (r *PublicationRepository) FindByStoredName(ctx context.Context, storedName string) (*Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE stored_name = $1`

	p, err := scanPublication(r.db.QueryRowContext(ctx, query, storedName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// List は条件に合う行を新しい順に返します。
func (r *PublicationRepository) List(ctx context.Context, q ListQuery) ([]Publication, error) {
	var (
		where []string
		args  []any
	)
	if q.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}
	if q.UploaderID != 0 {
		args = append(args, q.UploaderID)
		where = append(where, fmt.Sprintf("uploader_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d OR career ILIKE $%d)", n, n, n))
	}

	query := `SELECT ` + publicationColumns + ` FROM publications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]Publication, 0)
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// SetActive は公開フラグだけを更新します。
func (r *PublicationRepository) SetActive(ctx context.Context, storedName string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE publications SET is_active = $1 WHERE stored_name = $2`, active, storedName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectAffected(res)
}

// Delete は行を物理削除します。
func (r *PublicationRepository) Delete(ctx context.Context, storedName string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM publications WHERE stored_name = $1`, storedName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPublication(row rowScanner) (*Publication, error) {
	p := &Publication{}
	var description sql.NullString
	err := row.Scan(&p.ID, &p.StoredName, &p.OriginalName, &p.Title, &p.Author, &p.Career, &p.Type, &description,
		&p.SizeBytes, &p.Pages, &p.UploaderID, &p.UploaderName, &p.CreatedAt, &p.IsActive)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	return p, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike は LIKE のワイルドカードを文字として扱うようにエスケープします。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
