package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindNotFound, "no existe", errors.New("sql: no rows")))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, kind)
}

func TestKindOfPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("boom"))
	assert.False(t, ok)
}

func TestPersistenceKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Persistence(cause)

	assert.True(t, errors.Is(err, ErrPersistenceFailure))
	assert.True(t, errors.Is(err, cause))
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"not found", ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"too large", ErrFileTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{"duplicate", ErrDuplicateEmail, http.StatusConflict, "DUPLICATE_EMAIL"},
		{"unsupported", ErrUnsupportedType, http.StatusBadRequest, "UNSUPPORTED_TYPE"},
		{"weak", ErrWeakPassword, http.StatusBadRequest, "WEAK_PASSWORD"},
		{"storage", Storage(errors.New("disk full")), http.StatusInternalServerError, "STORAGE_FAILURE"},
		{"canceled", context.Canceled, http.StatusRequestTimeout, "REQUEST_CANCELED"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Describe(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestDescribeHidesCause(t *testing.T) {
	_, body := Describe(Persistence(errors.New("password authentication failed for user postgres")))
	assert.NotContains(t, body.Message, "postgres")
}
