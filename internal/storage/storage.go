// Package storage は PDF 本体の保存先を抽象化します。
// キーはディレクトリを含まない平坦な名前です。
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Blob はバイト列の保存先です。
type Blob interface {
	// Put は r の内容を key に保存します。同じ key があれば上書きします。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open は key の内容を読み出します。存在しない場合は ErrNotFound です。
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete は key を削除します。存在しない key の削除は成功扱いです。
	Delete(ctx context.Context, key string) error
}

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// ValidKey は key がパス区切りや親ディレクトリ参照を含まないことを確認します。
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, "/\\\x00")
}
