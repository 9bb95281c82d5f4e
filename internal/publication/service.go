package publication

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/umoar/publicaciones/internal/access"
	"github.com/umoar/publicaciones/internal/apperr"
	"github.com/umoar/publicaciones/internal/logging"
	"github.com/umoar/publicaciones/internal/storage"
	"github.com/umoar/publicaciones/internal/store"
)

// Repository は公開物の永続化先です。*store.PublicationRepository が実装します。
type Repository interface {
	Insert(ctx context.Context, p *store.Publication) error
	FindByStoredName(ctx context.Context, storedName string) (*store.Publication, error)
	List(ctx context.Context, q store.ListQuery) ([]store.Publication, error)
	SetActive(ctx context.Context, storedName string, active bool) error
	Delete(ctx context.Context, storedName string) error
}

// Options はサービスの動作設定です。
type Options struct {
	MaxFileSize         int64
	IOTimeout           time.Duration
	HardDeleteAdminOnly bool
}

// 既定値
const (
	DefaultMaxFileSize = 10 * 1024 * 1024
	DefaultIOTimeout   = 10 * time.Second
)

// Service は公開物の業務ロジックです。
type Service struct {
	repo  Repository
	blobs storage.Blob
	log   logging.Logger
	opts  Options
	now   func() time.Time
	newID func() (uuid.UUID, error)
}

// NewService は Service を作成します。
func NewService(repo Repository, blobs storage.Blob, log logging.Logger, opts Options) *Service {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = DefaultIOTimeout
	}
	return &Service{
		repo:  repo,
		blobs: blobs,
		log:   log.With("module", "publication"),
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewV7,
	}
}

// MaxFileSize はアップロード上限を返します。
func (s *Service) MaxFileSize() int64 {
	return s.opts.MaxFileSize
}

// Create はファイルを保存してから行を追加します。
// 行の追加に失敗した場合は保存済みのファイルを削除してから PersistenceFailure を返します。
func (s *Service) Create(ctx context.Context, uploader *access.Identity, file *Upload, meta Metadata) (*Created, error) {
	if uploader == nil {
		return nil, apperr.ErrUnauthenticated
	}

	// 副作用の前にすべて検証する
	if file == nil || file.Content == nil {
		return nil, apperr.ErrMissingFile
	}
	if file.ContentType != PDFContentType {
		return nil, apperr.ErrUnsupportedType
	}
	if file.Size > s.opts.MaxFileSize {
		return nil, apperr.ErrFileTooLarge
	}
	meta = meta.normalized()
	if meta.Title == "" || meta.Author == "" {
		return nil, apperr.ErrMissingRequiredField
	}
	if !ValidType(meta.Type) {
		return nil, apperr.New(apperr.KindMissingRequiredField, "Tipo de publicación inválido", nil)
	}

	// 申告サイズは信用せず、上限 + 1 バイトまで読む
	data, err := io.ReadAll(io.LimitReader(file.Content, s.opts.MaxFileSize+1))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperr.New(apperr.KindMissingFile, "No se pudo leer el archivo", err)
	}
	if int64(len(data)) > s.opts.MaxFileSize {
		return nil, apperr.ErrFileTooLarge
	}
	if !looksLikePDF(data) {
		return nil, apperr.ErrUnsupportedType
	}

	pages, err := inspectPages(data)
	if err != nil {
		s.log.Warn(ctx, "page count unavailable", "file", file.Name, "error", err)
	}

	id, err := s.newID()
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	now := s.now()
	p := &store.Publication{
		ID:           id.String(),
		StoredName:   storedName(now, file.Name),
		OriginalName: file.Name,
		Title:        meta.Title,
		Author:       meta.Author,
		Career:       meta.Career,
		Type:         meta.Type,
		Description:  meta.Description,
		SizeBytes:    int64(len(data)),
		Pages:        pages,
		UploaderID:   uploader.ID,
		UploaderName: uploader.Name,
	}

	if err := s.putBlob(ctx, p.StoredName, data); err != nil {
		s.log.Error(ctx, "store file failed", "ref", p.StoredName, "error", err)
		return nil, apperr.Storage(err)
	}

	if err := s.insert(ctx, p); err != nil {
		s.log.Error(ctx, "insert publication failed", "ref", p.StoredName, "error", err)
		s.compensate(ctx, p.StoredName)
		return nil, apperr.Persistence(err)
	}

	s.log.Info(ctx, "publication created", "ref", p.StoredName, "uploader_id", uploader.ID, "pages", pages)
	return &Created{URL: FileURL(p.StoredName), Publication: p}, nil
}

// compensate は行の追加に失敗したときに保存済みファイルを消します。
// 失敗しても呼び出し元の結果は変えず、ログだけ残します。
func (s *Service) compensate(ctx context.Context, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.IOTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, ref); err != nil {
		s.log.Error(ctx, "orphaned file could not be removed", "ref", ref, "error", err)
	}
}

// List は範囲と条件に合う公開物を新しい順に返します。
func (s *Service) List(ctx context.Context, viewer *access.Identity, scope Scope, filter Filter) ([]Publication, error) {
	q := store.ListQuery{Search: filter.Query}

	switch scope {
	case ScopePublic:
		q.ActiveOnly = true
	case ScopeOwnerOrAdmin:
		if viewer == nil {
			return nil, apperr.ErrUnauthenticated
		}
		if !access.IsAdmin(viewer) {
			q.UploaderID = viewer.ID
		}
	default:
		return nil, apperr.ErrForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.IOTimeout)
	defer cancel()

	items, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return items, nil
}

// SetActive は公開フラグを切り替えます。現在と同じ値の場合は何も書き込みません。
func (s *Service) SetActive(ctx context.Context, caller *access.Identity, ref string, active bool) (*Publication, error) {
	p, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, apperr.ErrUnauthenticated
	}
	if !access.CanManage(caller, p.UploaderID) {
		return nil, apperr.ErrForbidden
	}
	if p.IsActive == active {
		return p, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.IOTimeout)
	defer cancel()

	if err := s.repo.SetActive(ctx, ref, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Persistence(err)
	}

	p.IsActive = active
	s.log.Info(ctx, "publication visibility changed", "ref", ref, "active", active, "by", caller.ID)
	return p, nil
}

// HardDelete はファイルと行を削除します。ファイルの削除失敗は記録だけして続行します。
func (s *Service) HardDelete(ctx context.Context, caller *access.Identity, ref string) error {
	p, err := s.find(ctx, ref)
	if err != nil {
		return err
	}
	if caller == nil {
		return apperr.ErrUnauthenticated
	}
	allowed := access.CanManage(caller, p.UploaderID)
	if s.opts.HardDeleteAdminOnly {
		allowed = access.IsAdmin(caller)
	}
	if !allowed {
		return apperr.ErrForbidden
	}

	blobCtx, cancelBlob := context.WithTimeout(ctx, s.opts.IOTimeout)
	if err := s.blobs.Delete(blobCtx, ref); err != nil {
		s.log.Warn(ctx, "remove file failed", "ref", ref, "error", err)
	}
	cancelBlob()

	dbCtx, cancel := context.WithTimeout(ctx, s.opts.IOTimeout)
	defer cancel()

	if err := s.repo.Delete(dbCtx, ref); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return apperr.Persistence(err)
	}

	s.log.Info(ctx, "publication deleted", "ref", ref, "by", caller.ID)
	return nil
}

// Open はダウンロード用にファイルを開きます。
// 非公開のものは所有者と管理者だけが読めます。それ以外には存在しないものとして扱います。
// 返した ReadCloser を閉じるまで IOTimeout の期限が有効です。
func (s *Service) Open(ctx context.Context, viewer *access.Identity, ref string) (*Publication, io.ReadCloser, error) {
	p, err := s.find(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if !p.IsActive && !access.CanManage(viewer, p.UploaderID) {
		return nil, nil, apperr.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.IOTimeout)
	rc, err := s.blobs.Open(ctx, ref)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Error(ctx, "file missing for publication", "ref", ref)
			return nil, nil, apperr.ErrNotFound
		}
		return nil, nil, apperr.Storage(err)
	}
	return p, &cancelOnClose{ReadCloser: rc, cancel: cancel}, nil
}

func (s *Service) find(ctx context.Context, ref string) (*store.Publication, error) {
	if !storage.ValidKey(ref) {
		return nil, apperr.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.IOTimeout)
	defer cancel()

	p, err := s.repo.FindByStoredName(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Persistence(err)
	}
	return p, nil
}

func (s *Service) putBlob(ctx context.Context, ref string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.IOTimeout)
	defer cancel()
	return s.blobs.Put(ctx, ref, bytes.NewReader(data), int64(len(data)), PDFContentType)
}

func (s *Service) insert(ctx context.Context, p *store.Publication) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.IOTimeout)
	defer cancel()
	return s.repo.Insert(ctx, p)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
