package types

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/entity"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/labstack/echo/v4"
	"github.com/nyaruka/phonenumbers"
)

const (
	DateLayout = "2006-01-02"

	DefaultLimit     = 10
	MinLimit         = 10
	MaxLimit         = 100
	DefaultBirthdays = 7
	MaxBirthdays     = 30
)

var ErrInvalidContactID = errors.New("contact id must be a positive integer")

type ContactRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone"`
	Birthday  *string `json:"birthday"`
	Comments  *string `json:"comments"`
	Favorite  bool    `json:"favorite"`
}

func NewContactRequestFromContext(ctx echo.Context) (*ContactRequest, error) {
	var body ContactRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.FirstName = strings.TrimSpace(body.FirstName)
	body.LastName = strings.TrimSpace(body.LastName)
	body.Email = strings.TrimSpace(body.Email)
	return &body, nil
}

// Validate checks the payload. Phone numbers without a country prefix are
// parsed against defaultRegion.
func (r *ContactRequest) Validate(defaultRegion string) error {
	return validation.ValidateStruct(r,
		validation.Field(&r.FirstName, validation.Required, validation.RuneLength(1, 25)),
		validation.Field(&r.LastName, validation.Required, validation.RuneLength(1, 25)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Phone, validation.RuneLength(0, 25), validation.By(phoneRule(defaultRegion))),
		validation.Field(&r.Birthday, validation.Date(DateLayout), validation.By(notInFuture)),
	)
}

// BirthdayTime returns the parsed birthday. It must only be called after
// Validate succeeded.
func (r *ContactRequest) BirthdayTime() (time.Time, bool) {
	if r.Birthday == nil || strings.TrimSpace(*r.Birthday) == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(*r.Birthday))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func phoneRule(defaultRegion string) validation.RuleFunc {
	return func(value interface{}) error {
		v, _ := validation.Indirect(value)
		phone, _ := v.(string)
		if strings.TrimSpace(phone) == "" {
			return nil
		}
		num, err := phonenumbers.Parse(phone, defaultRegion)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

func notInFuture(value interface{}) error {
	v, _ := validation.Indirect(value)
	date, _ := v.(string)
	if strings.TrimSpace(date) == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return nil
	}
	if t.After(time.Now()) {
		return errors.New("must not be in the future")
	}
	return nil
}

type FavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

func NewFavoriteRequestFromContext(ctx echo.Context) (*FavoriteRequest, error) {
	var body FavoriteRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

type Page struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

func (p *Page) rules() []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&p.Skip, validation.Min(0)),
		validation.Field(&p.Limit, validation.Required, validation.Min(MinLimit), validation.Max(MaxLimit)),
	}
}

type ListContactsRequest struct {
	Page
	Favorite *bool
}

func NewListContactsRequestFromContext(ctx echo.Context) (*ListContactsRequest, error) {
	req := &ListContactsRequest{Page: Page{Limit: DefaultLimit}}
	var favorite bool
	err := echo.QueryParamsBinder(ctx).
		Int("skip", &req.Skip).
		Int("limit", &req.Limit).
		Bool("favorite", &favorite).
		BindError()
	if err != nil {
		return nil, err
	}
	if ctx.QueryParam("favorite") != "" {
		req.Favorite = &favorite
	}

	return req, nil
}

func (r *ListContactsRequest) Validate() error {
	return validation.ValidateStruct(&r.Page, r.Page.rules()...)
}

type SearchContactsRequest struct {
	Page
	FirstName string
	LastName  string
	Email     string
}

var ErrEmptySearch = errors.New("at least one of first_name, last_name or email is required")

func NewSearchContactsRequestFromContext(ctx echo.Context) (*SearchContactsRequest, error) {
	req := &SearchContactsRequest{Page: Page{Limit: DefaultLimit}}
	err := echo.QueryParamsBinder(ctx).
		String("first_name", &req.FirstName).
		String("last_name", &req.LastName).
		String("email", &req.Email).
		Int("skip", &req.Skip).
		Int("limit", &req.Limit).
		BindError()
	if err != nil {
		return nil, err
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	return req, nil
}

func (r *SearchContactsRequest) Validate() error {
	if r.FirstName == "" && r.LastName == "" && r.Email == "" {
		return ErrEmptySearch
	}
	return validation.ValidateStruct(&r.Page, r.Page.rules()...)
}

type BirthdaysRequest struct {
	Page
	Days int
}

func NewBirthdaysRequestFromContext(ctx echo.Context) (*BirthdaysRequest, error) {
	req := &BirthdaysRequest{Page: Page{Limit: DefaultLimit}, Days: DefaultBirthdays}
	err := echo.QueryParamsBinder(ctx).
		Int("days", &req.Days).
		Int("skip", &req.Skip).
		Int("limit", &req.Limit).
		BindError()
	if err != nil {
		return nil, err
	}

	return req, nil
}

func (r *BirthdaysRequest) Validate() error {
	if err := validation.Validate(r.Days, validation.Required, validation.Min(1), validation.Max(MaxBirthdays)); err != nil {
		return validation.Errors{"days": err}
	}
	return validation.ValidateStruct(&r.Page, r.Page.rules()...)
}

// ContactIDFromContext parses the ":id" path parameter.
func ContactIDFromContext(ctx echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidContactID
	}
	return id, nil
}

type ContactResponse struct {
	ID        uint64    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	Birthday  *string   `json:"birthday"`
	Comments  *string   `json:"comments"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewContactResponse(contact *entity.Contact) *ContactResponse {
	res := &ContactResponse{
		ID:        contact.ID,
		FirstName: contact.FirstName,
		LastName:  contact.LastName,
		Email:     contact.Email,
		Favorite:  contact.Favorite,
		CreatedAt: contact.CreatedAt,
		UpdatedAt: contact.UpdatedAt,
	}
	if contact.Phone.Valid {
		phone := contact.Phone.String
		res.Phone = &phone
	}
	if contact.Birthday.Valid {
		birthday := contact.Birthday.Time.Format(DateLayout)
		res.Birthday = &birthday
	}
	if contact.Comments.Valid {
		comments := contact.Comments.String
		res.Comments = &comments
	}
	return res
}

func NewContactListResponse(contacts []*entity.Contact) []*ContactResponse {
	res := make([]*ContactResponse, 0, len(contacts))
	for _, contact := range contacts {
		res = append(res, NewContactResponse(contact))
	}
	return res
}
