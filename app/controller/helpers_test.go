package controller_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/entity"
	"github.com/vibast-solutions/ms-go-phonebook/app/middleware"
	"github.com/vibast-solutions/ms-go-phonebook/app/repository"
	"github.com/vibast-solutions/ms-go-phonebook/app/security"
	"github.com/vibast-solutions/ms-go-phonebook/app/service"
	"github.com/vibast-solutions/ms-go-phonebook/app/token"
	"github.com/vibast-solutions/ms-go-phonebook/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret  = "test-secret"
	phoneRegion = "UA"

	findUserByEmailQuery    = `SELECT id, username, email, password_hash, confirmed, refresh_token, avatar, created_at, updated_at FROM users WHERE email = \?`
	insertUserQuery         = `(?s)INSERT INTO users \(username, email, password_hash, confirmed, avatar, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?\)`
	setConfirmedQuery       = `UPDATE users SET confirmed = 1, updated_at = \? WHERE email = \?`
	updateRefreshTokenQuery = `UPDATE users SET refresh_token = \?, updated_at = \? WHERE id = \?`
	updateAvatarQuery       = `UPDATE users SET avatar = \?, updated_at = \? WHERE email = \?`

	selectContacts          = `SELECT id, user_id, first_name, last_name, email, phone, birthday, comments, favorite, created_at, updated_at FROM contacts`
	listContactsQuery       = selectContacts + ` WHERE user_id = \? ORDER BY id LIMIT \? OFFSET \?`
	findContactByIDQuery    = selectContacts + ` WHERE id = \? AND user_id = \?`
	findContactByEmailQuery = selectContacts + ` WHERE email = \? AND user_id = \? LIMIT 1`
	insertContactQuery      = `(?s)INSERT INTO contacts \(user_id, first_name, last_name, email, phone, birthday, comments, favorite, created_at, updated_at\)\s+VALUES`
	updateFavoriteQuery     = `UPDATE contacts SET favorite = \?, updated_at = \? WHERE id = \? AND user_id = \?`
	deleteContactQuery      = `DELETE FROM contacts WHERE id = \? AND user_id = \?`
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"confirmed",
	"refresh_token",
	"avatar",
	"created_at",
	"updated_at",
}

var contactColumns = []string{
	"id",
	"user_id",
	"first_name",
	"last_name",
	"email",
	"phone",
	"birthday",
	"comments",
	"favorite",
	"created_at",
	"updated_at",
}

type nopMailer struct{}

func (nopMailer) Send(context.Context, string, string, string, interface{}) error { return nil }

type testEnv struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	codec    *token.Codec
	hasher   *security.BcryptHasher
	auth     service.UserAuthService
	contacts service.ContactService
}

func newTestConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:          testSecret,
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			ConfirmTokenTTL: 7 * 24 * time.Hour,
		},
		Password: config.PasswordConfig{
			Policy: config.PasswordPolicy{
				MinLength:         6,
				MaxLength:         10,
				UsernameMinLength: 5,
				UsernameMaxLength: 16,
			},
		},
		Mail: config.MailConfig{
			BaseURL: "http://localhost:8000",
		},
		Contacts: config.ContactsConfig{
			DefaultPhoneRegion: phoneRegion,
		},
	}
}

func newTestEnv(t *testing.T, opts ...service.UserAuthServiceOption) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		db:     db,
		mock:   mock,
		codec:  token.NewCodec(testSecret),
		hasher: security.NewBcryptHasher(bcrypt.MinCost),
	}

	base := []service.UserAuthServiceOption{
		service.WithTokenCodec(env.codec),
		service.WithPasswordHasher(env.hasher),
		service.WithMailSender(nopMailer{}),
		service.WithAsyncRunner(func(task func()) { task() }),
	}
	env.auth = service.NewUserAuthService(repository.NewUserRepository(db), newTestConfig(), append(base, opts...)...)
	env.contacts = service.NewContactService(repository.NewContactRepository(db), phoneRegion)
	return env
}

func (e *testEnv) verify(t *testing.T) {
	t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func (e *testEnv) hash(t *testing.T, password string) string {
	t.Helper()
	digest, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	return digest
}

func (e *testEnv) issue(t *testing.T, subject string, scope token.Scope) string {
	t.Helper()
	tok, err := e.codec.Issue(subject, scope, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	return tok
}

func (e *testEnv) expectUser(email string, id uint64, passwordHash string, confirmed bool, refreshToken interface{}) {
	now := time.Now()
	e.mock.ExpectQuery(findUserByEmailQuery).
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id, "alice", email, passwordHash, confirmed, refreshToken, nil, now, now))
}

func (e *testEnv) expectNoUser(email string) {
	e.mock.ExpectQuery(findUserByEmailQuery).
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows(userColumns))
}

func newJSONRequest(t *testing.T, method, path string, body any) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func authenticatedUser() *entity.User {
	now := time.Now()
	return &entity.User{
		ID:        7,
		Username:  "alice",
		Email:     "a@x.com",
		Confirmed: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// newAuthedContext builds an echo context carrying the user RequireAuth
// would have stored.
func newAuthedContext(req *http.Request, rec *httptest.ResponseRecorder, user *entity.User) echo.Context {
	ctx := echo.New().NewContext(req, rec)
	if user != nil {
		ctx.Set(middleware.ContextKeyUser, user)
	}
	return ctx
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("invalid response json: %v (%s)", err, rec.Body.String())
	}
}
