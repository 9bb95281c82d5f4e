package publication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/umoar/publicaciones/internal/access"
	"github.com/umoar/publicaciones/internal/apperr"
)

// Creator は登録を提供します。
type Creator interface {
	Create(ctx context.Context, uploader *access.Identity, file *Upload, meta Metadata) (*Created, error)
	MaxFileSize() int64
}

// Lister は一覧を提供します。
type Lister interface {
	List(ctx context.Context, viewer *access.Identity, scope Scope, filter Filter) ([]Publication, error)
}

// Moderator は公開切替と削除を提供します。
type Moderator interface {
	SetActive(ctx context.Context, caller *access.Identity, ref string, active bool) (*Publication, error)
	HardDelete(ctx context.Context, caller *access.Identity, ref string) error
}

// Opener はダウンロードを提供します。
type Opener interface {
	Open(ctx context.Context, viewer *access.Identity, ref string) (*Publication, io.ReadCloser, error)
}

// multipartOverhead はファイル以外のフィールドと境界文字列のための余裕です。
const multipartOverhead = 1 << 20

// CreateHandler は POST /api/publications のハンドラーを返します。
func CreateHandler(svc Creator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, svc.MaxFileSize()+multipartOverhead)

		form, err := c.MultipartForm()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
				respondWithError(c, apperr.ErrFileTooLarge)
				return
			}
			respondWithError(c, apperr.ErrMissingFile)
			return
		}
		defer form.RemoveAll()

		header := extractSingleFile(form)
		if header == nil {
			respondWithError(c, apperr.ErrMissingFile)
			return
		}

		file, err := header.Open()
		if err != nil {
			respondWithError(c, apperr.New(apperr.KindMissingFile, "No se pudo leer el archivo", err))
			return
		}
		defer file.Close()

		upload := &Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Content:     file,
		}
		meta := Metadata{
			Title:       c.PostForm("title"),
			Author:      c.PostForm("author"),
			Career:      c.PostForm("career"),
			Type:        c.PostForm("type"),
			Description: c.PostForm("description"),
		}

		created, err := svc.Create(c.Request.Context(), access.FromContext(c), upload, meta)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// ListHandler は一覧のハンドラーを返します。?q= で部分一致検索します。
func ListHandler(svc Lister, scope Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.List(c.Request.Context(), access.FromContext(c), scope, Filter{Query: c.Query("q")})
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"publications": items})
	}
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

// SetActiveHandler は PATCH /api/publications/:ref のハンドラーを返します。
func SetActiveHandler(svc Moderator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
			respondWithError(c, apperr.New(apperr.KindMissingRequiredField, "Indique el estado con el campo active", err))
			return
		}

		p, err := svc.SetActive(c.Request.Context(), access.FromContext(c), c.Param("ref"), *req.Active)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// DeleteHandler は DELETE /api/publications/:ref のハンドラーを返します。
func DeleteHandler(svc Moderator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.HardDelete(c.Request.Context(), access.FromContext(c), c.Param("ref")); err != nil {
			respondWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// DownloadHandler は GET /uploads/:ref のハンドラーを返します。
func DownloadHandler(svc Opener) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, body, err := svc.Open(c.Request.Context(), access.FromContext(c), c.Param("ref"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer body.Close()

		encodedName := url.PathEscape(p.OriginalName)
		extra := map[string]string{
			"Content-Disposition":    fmt.Sprintf("inline; filename=\"%s\"; filename*=UTF-8''%s", p.StoredName, encodedName),
			"X-Content-Type-Options": "nosniff",
		}
		if !p.IsActive {
			extra["Cache-Control"] = "no-store"
		}

		size := p.SizeBytes
		if size <= 0 {
			size = -1
		}
		c.DataFromReader(http.StatusOK, size, PDFContentType, body, extra)
	}
}

// respondWithError はエラー種別に応じたステータスと JSON を返します。
// 内部原因は gin のエラーとして記録し、レスポンスには含めません。
func respondWithError(c *gin.Context, err error) {
	status, body := apperr.Describe(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func extractSingleFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if file := form.File["file"]; len(file) > 0 {
		return file[0]
	}
	if file := form.File["file[]"]; len(file) > 0 {
		return file[0]
	}
	return nil
}
