package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umoar/publicaciones/internal/auth"
	"github.com/umoar/publicaciones/internal/config"
	"github.com/umoar/publicaciones/internal/logging"
	"github.com/umoar/publicaciones/internal/publication"
	"github.com/umoar/publicaciones/internal/storage"
	"github.com/umoar/publicaciones/internal/store"
	"github.com/umoar/publicaciones/internal/users"
)

func newTestApp(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		CORSAllowedOrigins:  "http://localhost:3000",
		SessionSecret:       strings.Repeat("s", 40),
		InstitutionalDomain: "@umoar.edu.sv",
		MaxFileSize:         10 * 1024 * 1024,
		IOTimeout:           time.Second,
	}
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	sessionStore, err := auth.NewCookieStore(cfg.SessionSecret, false)
	require.NoError(t, err)

	log := logging.Discard()
	app := &application{
		cfg:          cfg,
		log:          log,
		db:           db,
		sessions:     sessionStore,
		auth:         auth.NewManager(cfg, store.NewUserRepository(db), auth.NewMemoryThrottle(), log),
		users:        users.NewService(store.NewUserRepository(db), cfg, log),
		publications: publication.NewService(store.NewPublicationRepository(db), blobs, log, publication.Options{IOTimeout: time.Second}),
	}

	router := gin.New()
	app.setupRoutes(router)
	return router, mock
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r, mock := newTestApp(t)

	mock.ExpectPing()
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	rec = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestGatewayRejectsAnonymousWrites(t *testing.T) {
	r, mock := newTestApp(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/publications"},
		{http.MethodPatch, "/api/publications/1_abcd_x.pdf"},
		{http.MethodDelete, "/api/publications/1_abcd_x.pdf"},
		{http.MethodGet, "/api/dashboard/publications"},
		{http.MethodPost, "/api/users"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
		req.Header.Set("Accept", "application/json")
		rec := serve(r, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tt.method, tt.path)
		assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
	}
	require.NoError(t, mock.ExpectationsWereMet(), "no database access")
}

func TestGatewayRedirectsBrowsers(t *testing.T) {
	r, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/publications", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := serve(r, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

const findUserQuery = `SELECT id, full_name, email, password_hash, role, created_at FROM users`

func login(t *testing.T, r *gin.Engine, mock sqlmock.Sqlmock, role string) (*http.Cookie, string) {
	t.Helper()
	hash, err := auth.HashPassword("clave2024")
	require.NoError(t, err)

	mock.ExpectQuery(findUserQuery).
		WithArgs("ana@umoar.edu.sv").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "email", "password_hash", "role", "created_at"}).
			AddRow(int64(5), "Ana", "ana@umoar.edu.sv", hash, role, time.Now()))

	req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{"email":"ana@umoar.edu.sv","password":"clave2024"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(r, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[len(cookies)-1], rec.Header().Get("X-CSRF-Token")
}

func TestNonAdminCannotRegisterUsers(t *testing.T) {
	r, mock := newTestApp(t)
	cookie, token := login(t, r, mock, "user")

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":"B","email":"b@umoar.edu.sv","password":"clave2024"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(cookie)
	rec := serve(r, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")
	require.NoError(t, mock.ExpectationsWereMet(), "no insert attempted")
}

func TestWritesRequireCSRFToken(t *testing.T) {
	r, mock := newTestApp(t)
	cookie, _ := login(t, r, mock, "admin")

	req := httptest.NewRequest(http.MethodPatch, "/api/publications/1_abcd_x.pdf", strings.NewReader(`{"active":false}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := serve(r, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "CSRF_INVALID")
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitOrigins(" https://a.example, https://b.example ,"))
	assert.Equal(t, []string{"http://localhost:3000"}, splitOrigins(""))
}
