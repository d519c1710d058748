package types

import (
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-phonebook/app/entity"
)

type ResolveUserRequest struct {
	AccessToken string `json:"access_token"`
}

func (r *ResolveUserRequest) GetAccessToken() string {
	if r == nil {
		return ""
	}
	return r.AccessToken
}

func (r *ResolveUserRequest) Validate() error {
	if strings.TrimSpace(r.GetAccessToken()) == "" {
		return errors.New("access_token is required")
	}
	return nil
}

type ResolveUserResponse struct {
	UserID    uint64 `json:"user_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Confirmed bool   `json:"confirmed"`
	Avatar    string `json:"avatar,omitempty"`
}

func NewResolveUserResponse(user *entity.User) *ResolveUserResponse {
	res := &ResolveUserResponse{
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Confirmed: user.Confirmed,
	}
	if user.Avatar.Valid {
		res.Avatar = user.Avatar.String
	}
	return res
}
