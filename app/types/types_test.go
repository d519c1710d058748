package types

import (
	"bytes"
	"database/sql"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/entity"

	"github.com/labstack/echo/v4"
)

func strPtr(s string) *string { return &s }

func newJSONContext(method, target, body string) echo.Context {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestSignupRequest(t *testing.T) {
	ctx := newJSONContext(http.MethodPost, "/api/auth/signup", `{"username":" alice ","email":" a@x.com ","password":"secret1"}`)

	req, err := NewSignupRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if req.Username != "alice" || req.Email != "a@x.com" {
		t.Fatalf("expected trimmed fields, got %+v", req)
	}
	if err = req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	req.Email = "not-an-email"
	if err = req.Validate(); err == nil {
		t.Fatalf("expected invalid email error")
	}
}

func TestSignupRequest_RejectsOverlongEmail(t *testing.T) {
	local := strings.Repeat("a", 64)
	domain := strings.Repeat("b", 63) + "." + strings.Repeat("c", 63) + "." + strings.Repeat("d", 58) + ".com"
	email := local + "@" + domain
	if len(email) != MaxEmailLength+1 {
		t.Fatalf("fixture email has length %d", len(email))
	}

	req := &SignupRequest{Username: "alice", Email: email, Password: "secret1"}
	err := req.Validate()
	if err == nil || !strings.Contains(err.Error(), "email") {
		t.Fatalf("expected email length error, got %v", err)
	}
}

func TestLoginRequestFromForm(t *testing.T) {
	form := "username=a%40x.com&password=secret1"
	httpReq := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form))
	httpReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	ctx := echo.New().NewContext(httpReq, httptest.NewRecorder())

	req, err := NewLoginRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if req.Email != "a@x.com" || req.Password != "secret1" {
		t.Fatalf("unexpected login request: %+v", req)
	}
}

func TestLoginRequestFromJSON(t *testing.T) {
	ctx := newJSONContext(http.MethodPost, "/api/auth/login", `{"email":"a@x.com","password":""}`)

	req, err := NewLoginRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if err = req.Validate(); err == nil {
		t.Fatalf("expected missing password error")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc.def":   "abc.def",
		"bearer abc.def ":  "abc.def",
		"Basic dXNlcjpwdw": "",
		"abc.def":          "",
		"":                 "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(echo.HeaderAuthorization, header)
		}
		ctx := echo.New().NewContext(req, httptest.NewRecorder())
		if got := BearerToken(ctx); got != want {
			t.Fatalf("header %q: expected %q, got %q", header, want, got)
		}
	}
}

func TestContactRequestValidate(t *testing.T) {
	valid := &ContactRequest{
		FirstName: "Borys",
		LastName:  "Kuchyn",
		Email:     "borys@x.com",
		Phone:     strPtr("+380 67 123-4567"),
		Birthday:  strPtr("1990-05-04"),
	}
	if err := valid.Validate("UA"); err != nil {
		t.Fatalf("expected valid contact, got %v", err)
	}

	local := *valid
	local.Phone = strPtr("067 123 4567")
	if err := local.Validate("UA"); err != nil {
		t.Fatalf("expected local number to be valid for UA, got %v", err)
	}

	cases := map[string]func(r *ContactRequest){
		"missing first name": func(r *ContactRequest) { r.FirstName = "" },
		"long last name":     func(r *ContactRequest) { r.LastName = strings.Repeat("x", 26) },
		"bad email":          func(r *ContactRequest) { r.Email = "borys" },
		"bad phone":          func(r *ContactRequest) { r.Phone = strPtr("12") },
		"bad birthday":       func(r *ContactRequest) { r.Birthday = strPtr("04.05.1990") },
		"future birthday":    func(r *ContactRequest) { r.Birthday = strPtr(time.Now().AddDate(1, 0, 0).Format(DateLayout)) },
	}
	for name, mutate := range cases {
		req := *valid
		mutate(&req)
		if err := req.Validate("UA"); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	optional := &ContactRequest{FirstName: "Nadiia", LastName: "Volkova", Email: "n@x.com"}
	if err := optional.Validate("UA"); err != nil {
		t.Fatalf("expected optional fields to be optional, got %v", err)
	}
}

func TestContactRequestBirthdayTime(t *testing.T) {
	req := &ContactRequest{Birthday: strPtr("1990-05-04")}
	got, ok := req.BirthdayTime()
	if !ok || got.Year() != 1990 || got.Month() != time.May || got.Day() != 4 {
		t.Fatalf("unexpected birthday: %v %v", got, ok)
	}

	req.Birthday = strPtr(" ")
	if _, ok = req.BirthdayTime(); ok {
		t.Fatalf("expected blank birthday to be absent")
	}
}

func TestListContactsRequest(t *testing.T) {
	ctx := newJSONContext(http.MethodGet, "/api/contacts?skip=20&limit=50&favorite=true", "")

	req, err := NewListContactsRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if req.Skip != 20 || req.Limit != 50 || req.Favorite == nil || !*req.Favorite {
		t.Fatalf("unexpected list request: %+v", req)
	}
	if err = req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	ctx = newJSONContext(http.MethodGet, "/api/contacts", "")
	req, err = NewListContactsRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if req.Limit != DefaultLimit || req.Favorite != nil {
		t.Fatalf("expected defaults, got %+v", req)
	}

	for _, query := range []string{"limit=5", "limit=101", "limit=0", "skip=-1"} {
		ctx = newJSONContext(http.MethodGet, "/api/contacts?"+query, "")
		req, err = NewListContactsRequestFromContext(ctx)
		if err != nil {
			t.Fatalf("bind failed: %v", err)
		}
		if err = req.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", query)
		}
	}

	ctx = newJSONContext(http.MethodGet, "/api/contacts?limit=abc", "")
	if _, err = NewListContactsRequestFromContext(ctx); err == nil {
		t.Fatalf("expected bind error for non-numeric limit")
	}
}

func TestSearchContactsRequest(t *testing.T) {
	ctx := newJSONContext(http.MethodGet, "/api/contacts/search?last_name=Volk", "")
	req, err := NewSearchContactsRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if req.LastName != "Volk" || req.Limit != DefaultLimit {
		t.Fatalf("unexpected search request: %+v", req)
	}
	if err = req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	ctx = newJSONContext(http.MethodGet, "/api/contacts/search?first_name=%20", "")
	req, err = NewSearchContactsRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if err = req.Validate(); err != ErrEmptySearch {
		t.Fatalf("expected ErrEmptySearch, got %v", err)
	}
}

func TestBirthdaysRequest(t *testing.T) {
	ctx := newJSONContext(http.MethodGet, "/api/contacts/search/birthdays", "")
	req, err := NewBirthdaysRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if req.Days != DefaultBirthdays {
		t.Fatalf("expected default days, got %d", req.Days)
	}
	if err = req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	for _, query := range []string{"days=0", "days=31", "days=-3"} {
		ctx = newJSONContext(http.MethodGet, "/api/contacts/search/birthdays?"+query, "")
		req, err = NewBirthdaysRequestFromContext(ctx)
		if err != nil {
			t.Fatalf("bind failed: %v", err)
		}
		if err = req.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", query)
		}
	}
}

func TestContactIDFromContext(t *testing.T) {
	ctx := newJSONContext(http.MethodGet, "/", "")
	ctx.SetParamNames("id")

	ctx.SetParamValues("12")
	if id, err := ContactIDFromContext(ctx); err != nil || id != 12 {
		t.Fatalf("expected 12, got %d, %v", id, err)
	}

	for _, raw := range []string{"0", "-1", "abc", ""} {
		ctx.SetParamValues(raw)
		if _, err := ContactIDFromContext(ctx); err != ErrInvalidContactID {
			t.Fatalf("%q: expected ErrInvalidContactID, got %v", raw, err)
		}
	}
}

func TestNewContactResponse(t *testing.T) {
	now := time.Now()
	res := NewContactResponse(&entity.Contact{
		ID:        1,
		FirstName: "Borys",
		Phone:     sql.NullString{String: "+380531234567", Valid: true},
		Birthday:  sql.NullTime{Time: time.Date(1990, time.May, 4, 0, 0, 0, 0, time.UTC), Valid: true},
		CreatedAt: now,
	})
	if res.Phone == nil || *res.Phone != "+380531234567" {
		t.Fatalf("unexpected phone: %v", res.Phone)
	}
	if res.Birthday == nil || *res.Birthday != "1990-05-04" {
		t.Fatalf("unexpected birthday: %v", res.Birthday)
	}
	if res.Comments != nil {
		t.Fatalf("expected nil comments")
	}
}

func TestNewUserResponse(t *testing.T) {
	res := NewUserResponse(&entity.User{ID: 1, Username: "alice", Email: "a@x.com"})
	if res.Avatar != nil {
		t.Fatalf("expected nil avatar")
	}

	res = NewUserResponse(&entity.User{Avatar: sql.NullString{String: "https://img.test/a", Valid: true}})
	if res.Avatar == nil || *res.Avatar != "https://img.test/a" {
		t.Fatalf("unexpected avatar: %v", res.Avatar)
	}
}

func newMultipartContext(t *testing.T, field, filename string, data []byte) echo.Context {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file failed: %v", err)
	}
	if _, err = part.Write(data); err != nil {
		t.Fatalf("write form file failed: %v", err)
	}
	if err = writer.Close(); err != nil {
		t.Fatalf("close writer failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/users/avatar", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return echo.New().NewContext(req, httptest.NewRecorder())
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestAvatarUpload(t *testing.T) {
	ctx := newMultipartContext(t, "file", "me.png", pngHeader)

	upload, err := NewAvatarUploadFromContext(ctx)
	if err != nil {
		t.Fatalf("read upload failed: %v", err)
	}
	if upload.ContentType != "image/png" || upload.Filename != "me.png" {
		t.Fatalf("unexpected upload: %+v", upload)
	}
	if err = upload.Validate(); err != nil {
		t.Fatalf("expected valid upload, got %v", err)
	}

	ctx = newMultipartContext(t, "file", "notes.txt", []byte("hello world"))
	upload, err = NewAvatarUploadFromContext(ctx)
	if err != nil {
		t.Fatalf("read upload failed: %v", err)
	}
	if err = upload.Validate(); err != ErrAvatarContentType {
		t.Fatalf("expected ErrAvatarContentType, got %v", err)
	}

	ctx = newMultipartContext(t, "other", "me.png", pngHeader)
	if _, err = NewAvatarUploadFromContext(ctx); err != ErrAvatarMissing {
		t.Fatalf("expected ErrAvatarMissing, got %v", err)
	}

	big := append(append([]byte{}, pngHeader...), make([]byte, MaxAvatarSize)...)
	ctx = newMultipartContext(t, "file", "big.png", big)
	upload, err = NewAvatarUploadFromContext(ctx)
	if err != nil {
		t.Fatalf("read upload failed: %v", err)
	}
	if err = upload.Validate(); err != ErrAvatarTooLarge {
		t.Fatalf("expected ErrAvatarTooLarge, got %v", err)
	}
}

func TestResolveUserRequestValidate(t *testing.T) {
	var nilReq *ResolveUserRequest
	if nilReq.GetAccessToken() != "" {
		t.Fatalf("expected empty token for nil request")
	}
	if err := (&ResolveUserRequest{AccessToken: " "}).Validate(); err == nil {
		t.Fatalf("expected error for blank token")
	}
	if err := (&ResolveUserRequest{AccessToken: "x"}).Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}
