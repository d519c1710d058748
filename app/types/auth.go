package types

import (
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/entity"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/labstack/echo/v4"
)

const TokenTypeBearer = "bearer"

// MaxEmailLength is the RFC 5321 limit on an address. The users table sizes
// refresh_token for tokens whose subject is this long.
const MaxEmailLength = 254

type SignupRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func NewSignupRequestFromContext(ctx echo.Context) (*SignupRequest, error) {
	var body SignupRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Email = strings.TrimSpace(body.Email)
	body.Username = strings.TrimSpace(body.Username)
	return &body, nil
}

// Validate checks presence and format only; length limits come from the
// configured password policy.
func (r *SignupRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Email, validation.Required, validation.Length(3, MaxEmailLength), is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginRequest accepts JSON {"email", "password"} or an OAuth2 password form
// where the email travels in the "username" field.
type LoginRequest struct {
	Email    string `json:"email" form:"username"`
	Password string `json:"password" form:"password"`
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Email = strings.TrimSpace(body.Email)
	return &body, nil
}

func (r *LoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type RequestEmailRequest struct {
	Email string `json:"email" form:"email"`
}

func NewRequestEmailRequestFromContext(ctx echo.Context) (*RequestEmailRequest, error) {
	var body RequestEmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Email = strings.TrimSpace(body.Email)
	return &body, nil
}

func (r *RequestEmailRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. It returns an empty string when the header is missing or uses
// another scheme.
func BearerToken(ctx echo.Context) string {
	header := ctx.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type UserResponse struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Confirmed bool      `json:"confirmed"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUserResponse(user *entity.User) *UserResponse {
	res := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Confirmed: user.Confirmed,
		CreatedAt: user.CreatedAt,
	}
	if user.Avatar.Valid {
		avatar := user.Avatar.String
		res.Avatar = &avatar
	}
	return res
}

type SignupResponse struct {
	User   *UserResponse `json:"user"`
	Detail string        `json:"detail"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
