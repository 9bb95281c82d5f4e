// Package publication は PDF 公開物の登録、一覧、公開切替、削除、ダウンロードを提供します。
package publication

import (
	"io"
	"strings"

	"github.com/umoar/publicaciones/internal/store"
)

// Publication は公開物 1 件です。
type Publication = store.Publication

// 公開物の種別
const (
	TypeInstitucional = "Institucional"
	TypeCatedra       = "Catedra"
)

// PDFContentType は受け付ける唯一のコンテンツタイプです。
const PDFContentType = "application/pdf"

// URLPrefix はダウンロード URL の接頭辞です。
const URLPrefix = "/uploads/"

// Metadata は登録時に入力される書誌情報です。
type Metadata struct {
	Title       string
	Author      string
	Career      string
	Type        string
	Description string
}

func (m Metadata) normalized() Metadata {
	return Metadata{
		Title:       strings.TrimSpace(m.Title),
		Author:      strings.TrimSpace(m.Author),
		Career:      strings.TrimSpace(m.Career),
		Type:        strings.TrimSpace(m.Type),
		Description: strings.TrimSpace(m.Description),
	}
}

// ValidType は種別が既定の値のいずれかであるかを返します。
func ValidType(t string) bool {
	return t == TypeInstitucional || t == TypeCatedra
}

// Upload はアップロードされたファイルです。
// ContentType と Size はクライアントの申告値で、内容は登録時に改めて検査します。
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Scope は一覧の範囲です。
type Scope int

const (
	// ScopePublic は公開中のものだけを対象にします。閲覧者は問いません。
	ScopePublic Scope = iota
	// ScopeOwnerOrAdmin は管理者なら全件、一般利用者なら自分の登録分を対象にします。
	ScopeOwnerOrAdmin
)

// Filter は一覧の絞り込み条件です。
type Filter struct {
	Query string
}

// Created は登録結果です。
type Created struct {
	URL         string       `json:"url"`
	Publication *Publication `json:"publication"`
}

// FileURL は保存名からダウンロード URL を作ります。
func FileURL(storedName string) string {
	return URLPrefix + storedName
}
