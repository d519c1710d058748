package middleware_test

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/middleware"
	"github.com/vibast-solutions/ms-go-phonebook/app/repository"
	"github.com/vibast-solutions/ms-go-phonebook/app/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
)

var serviceKeyColumns = []string{"id", "service_name", "key_hash", "is_active", "expires_at", "created_at", "updated_at"}

const findServiceKeyByHashQuery = `(?s)SELECT id, service_name, key_hash, is_active, expires_at, created_at, updated_at\s+FROM service_keys\s+WHERE key_hash = \? AND is_active = 1 AND expires_at > NOW\(\)\s+ORDER BY id DESC\s+LIMIT 1`

func newAPIKeyMiddleware(t *testing.T) (*middleware.APIKeyMiddleware, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	keyService := service.NewServiceKeyService(repository.NewServiceKeyRepository(db))
	return middleware.NewAPIKeyMiddleware(keyService), mock
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func runRequireAPIKey(t *testing.T, m *middleware.APIKeyMiddleware, method, apiKey string, next echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, "/", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := m.RequireAPIKey(next)(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestRequireAPIKey_MissingHeader(t *testing.T) {
	apiKeyMiddleware, _ := newAPIKeyMiddleware(t)

	rec := runRequireAPIKey(t, apiKeyMiddleware, http.MethodPost, "", okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRequireAPIKey_PreflightPasses(t *testing.T) {
	apiKeyMiddleware, _ := newAPIKeyMiddleware(t)

	rec := runRequireAPIKey(t, apiKeyMiddleware, http.MethodOptions, "", okHandler)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestRequireAPIKey_InvalidKey(t *testing.T) {
	apiKeyMiddleware, mock := newAPIKeyMiddleware(t)

	mock.ExpectQuery(findServiceKeyByHashQuery).
		WithArgs(hashKey("pbsvc_bad")).
		WillReturnRows(sqlmock.NewRows(serviceKeyColumns))

	rec := runRequireAPIKey(t, apiKeyMiddleware, http.MethodPost, "pbsvc_bad", okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRequireAPIKey_ValidKeySetsCaller(t *testing.T) {
	apiKeyMiddleware, mock := newAPIKeyMiddleware(t)

	now := time.Now()
	mock.ExpectQuery(findServiceKeyByHashQuery).
		WithArgs(hashKey("pbsvc_good")).
		WillReturnRows(sqlmock.NewRows(serviceKeyColumns).AddRow(1, "billing", hashKey("pbsvc_good"), true, now.Add(time.Hour), now, now))

	rec := runRequireAPIKey(t, apiKeyMiddleware, http.MethodPost, "pbsvc_good", func(c echo.Context) error {
		if caller, _ := c.Get(middleware.ContextKeyCallerService).(string); caller != "billing" {
			t.Fatalf("expected caller billing, got %v", c.Get(middleware.ContextKeyCallerService))
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
