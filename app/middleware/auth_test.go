package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/middleware"
	"github.com/vibast-solutions/ms-go-phonebook/app/repository"
	"github.com/vibast-solutions/ms-go-phonebook/app/service"
	"github.com/vibast-solutions/ms-go-phonebook/app/token"
	"github.com/vibast-solutions/ms-go-phonebook/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
)

const (
	testSecret           = "test-secret"
	findUserByEmailQuery = `SELECT id, username, email, password_hash, confirmed, refresh_token, avatar, created_at, updated_at FROM users WHERE email = \?`
)

var userColumns = []string{"id", "username", "email", "password_hash", "confirmed", "refresh_token", "avatar", "created_at", "updated_at"}

func newAuthMiddleware(t *testing.T) (*middleware.AuthMiddleware, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:          testSecret,
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
	}
	authService := service.NewUserAuthService(repository.NewUserRepository(db), cfg)

	return middleware.NewAuthMiddleware(authService), mock
}

func issueToken(t *testing.T, subject string, scope token.Scope) string {
	t.Helper()
	tok, err := token.NewCodec(testSecret).Issue(subject, scope, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	return tok
}

func runRequireAuth(t *testing.T, authMiddleware *middleware.AuthMiddleware, authorization string, next echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := authMiddleware.RequireAuth(next)(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	authMiddleware, _ := newAuthMiddleware(t)

	rec := runRequireAuth(t, authMiddleware, "", okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected WWW-Authenticate challenge")
	}
}

func TestRequireAuth_InvalidHeaderFormat(t *testing.T) {
	authMiddleware, _ := newAuthMiddleware(t)

	rec := runRequireAuth(t, authMiddleware, "Token abc", okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	authMiddleware, _ := newAuthMiddleware(t)

	rec := runRequireAuth(t, authMiddleware, "Bearer invalid-token", okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRequireAuth_RejectsRefreshToken(t *testing.T) {
	authMiddleware, mock := newAuthMiddleware(t)

	rec := runRequireAuth(t, authMiddleware, "Bearer "+issueToken(t, "a@x.com", token.ScopeRefresh), okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRequireAuth_UnknownUser(t *testing.T) {
	authMiddleware, mock := newAuthMiddleware(t)

	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("ghost@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	rec := runRequireAuth(t, authMiddleware, "Bearer "+issueToken(t, "ghost@x.com", token.ScopeAccess), okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRequireAuth_DatabaseErrorIs500(t *testing.T) {
	authMiddleware, mock := newAuthMiddleware(t)

	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("a@x.com").
		WillReturnError(sqlmock.ErrCancelled)

	rec := runRequireAuth(t, authMiddleware, "Bearer "+issueToken(t, "a@x.com", token.ScopeAccess), okHandler)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestRequireAuth_SetsUserOnValidToken(t *testing.T) {
	authMiddleware, mock := newAuthMiddleware(t)

	now := time.Now()
	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(7, "alice", "a@x.com", "digest", true, nil, nil, now, now))

	rec := runRequireAuth(t, authMiddleware, "Bearer "+issueToken(t, "a@x.com", token.ScopeAccess), func(c echo.Context) error {
		user := middleware.CurrentUser(c)
		if user == nil || user.ID != 7 || user.Email != "a@x.com" {
			t.Fatalf("expected resolved user in context, got %+v", user)
		}
		return c.NoContent(http.StatusOK)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCurrentUser_Missing(t *testing.T) {
	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if middleware.CurrentUser(ctx) != nil {
		t.Fatalf("expected nil user")
	}
}
