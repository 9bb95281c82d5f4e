// Package apperr はアプリケーション全体で共有するエラー分類を提供します。
package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Kind は機械可読なエラー種別です。JSON の code としてそのまま返します。
type Kind string

const (
	KindUnauthenticated      Kind = "UNAUTHENTICATED"
	KindForbidden            Kind = "FORBIDDEN"
	KindNotFound             Kind = "NOT_FOUND"
	KindMissingFile          Kind = "MISSING_FILE"
	KindUnsupportedType      Kind = "UNSUPPORTED_TYPE"
	KindFileTooLarge         Kind = "FILE_TOO_LARGE"
	KindMissingRequiredField Kind = "MISSING_REQUIRED_FIELD"
	KindDuplicateEmail       Kind = "DUPLICATE_EMAIL"
	KindInvalidDomain        Kind = "INVALID_DOMAIN"
	KindWeakPassword         Kind = "WEAK_PASSWORD"
	KindPersistenceFailure   Kind = "PERSISTENCE_FAILURE"
	KindStorageFailure       Kind = "STORAGE_FAILURE"
)

// Error は利用者向けメッセージと内部原因を分けて保持します。
// Message はクライアントに返してよい文言、Err はログ専用です。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is は Kind が一致すれば同じエラーとみなします。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New は Error を作成します。
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// errors.Is で種別判定するための番兵です。
var (
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated, Message: "Debe iniciar sesión"}
	ErrForbidden            = &Error{Kind: KindForbidden, Message: "No tiene permisos para realizar esta acción"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "Recurso no encontrado"}
	ErrMissingFile          = &Error{Kind: KindMissingFile, Message: "Archivo faltante"}
	ErrUnsupportedType      = &Error{Kind: KindUnsupportedType, Message: "Solo se aceptan archivos PDF"}
	ErrFileTooLarge         = &Error{Kind: KindFileTooLarge, Message: "Archivo demasiado grande"}
	ErrMissingRequiredField = &Error{Kind: KindMissingRequiredField, Message: "Todos los campos son obligatorios"}
	ErrDuplicateEmail       = &Error{Kind: KindDuplicateEmail, Message: "El correo ya está registrado"}
	ErrInvalidDomain        = &Error{Kind: KindInvalidDomain, Message: "El correo no pertenece al dominio institucional"}
	ErrWeakPassword         = &Error{Kind: KindWeakPassword, Message: "La contraseña es demasiado débil"}
	ErrPersistenceFailure   = &Error{Kind: KindPersistenceFailure, Message: "Error al guardar los datos"}
	ErrStorageFailure       = &Error{Kind: KindStorageFailure, Message: "Error al guardar el archivo"}
)

// KindOf は err に含まれる最初の Error の種別を返します。
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Persistence は DB 由来のエラーを PersistenceFailure に包みます。
func Persistence(err error) *Error {
	return New(KindPersistenceFailure, ErrPersistenceFailure.Message, err)
}

// Storage はストレージ由来のエラーを StorageFailure に包みます。
func Storage(err error) *Error {
	return New(KindStorageFailure, ErrStorageFailure.Message, err)
}

// HTTPStatus は種別に対応する HTTP ステータスを返します。
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindDuplicateEmail:
		return http.StatusConflict
	case KindMissingFile, KindUnsupportedType, KindMissingRequiredField, KindInvalidDomain, KindWeakPassword:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Body はクライアントへ返す JSON 本文です。内部原因は含めません。
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Describe は err をステータスとレスポンス本文に変換します。
// 分類されていないエラーは内部エラーとして扱います。
func Describe(err error) (int, Body) {
	var e *Error
	switch {
	case errors.As(err, &e):
		return HTTPStatus(e.Kind), Body{Code: string(e.Kind), Message: e.Message}
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, Body{Code: "REQUEST_CANCELED", Message: "La solicitud fue cancelada"}
	default:
		return http.StatusInternalServerError, Body{Code: "INTERNAL_ERROR", Message: "Error interno del servidor"}
	}
}
