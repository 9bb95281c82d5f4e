package publication

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// countPages はテストで差し替えるための継ぎ目です。
var countPages = func(r io.ReadSeeker) (int, error) {
	return pdfapi.PageCount(r, nil)
}

// looksLikePDF は先頭のシグネチャから PDF かどうかを判定します。
// 拡張子やクライアントの申告は信用しません。
func looksLikePDF(data []byte) bool {
	return mimetype.Detect(data).Is(PDFContentType)
}

// inspectPages はページ数を読み取ります。壊れた PDF でも登録は妨げません。
func inspectPages(data []byte) (int, error) {
	pages, err := countPages(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	return pages, nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

const maxSanitizedNameLength = 120

// sanitizeName は英数字と ._- 以外を _ に置き換えます。
func sanitizeName(name string) string {
	cleaned := unsafeNameChars.ReplaceAllString(name, "_")
	if len(cleaned) > maxSanitizedNameLength {
		cleaned = cleaned[len(cleaned)-maxSanitizedNameLength:]
	}
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "documento.pdf"
	}
	return cleaned
}

// storedName は "<unixミリ秒>_<乱数8桁>_<安全化した元の名前>" を作ります。
// 同じミリ秒に同名ファイルが届いても乱数部分で区別されます。
func storedName(now time.Time, original string) string {
	suffix := uuid.New()
	return fmt.Sprintf("%d_%x_%s", now.UnixMilli(), suffix[:4], sanitizeName(original))
}
