package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/entity"
	"github.com/vibast-solutions/ms-go-phonebook/app/repository"
	"github.com/vibast-solutions/ms-go-phonebook/app/types"

	"github.com/nyaruka/phonenumbers"
)

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrContactExists   = errors.New("contact with this email already exists")
)

type contactRepository interface {
	List(ctx context.Context, userID uint64, favorite *bool, skip, limit int) ([]*entity.Contact, error)
	FindByID(ctx context.Context, userID, id uint64) (*entity.Contact, error)
	FindByEmail(ctx context.Context, userID uint64, email string) (*entity.Contact, error)
	Create(ctx context.Context, contact *entity.Contact) error
	Update(ctx context.Context, contact *entity.Contact) error
	UpdateFavorite(ctx context.Context, contact *entity.Contact) error
	Delete(ctx context.Context, userID, id uint64) (int64, error)
	Search(ctx context.Context, userID uint64, filter repository.ContactSearch) ([]*entity.Contact, error)
	FindByBirthdays(ctx context.Context, userID uint64, monthDays []string, skip, limit int) ([]*entity.Contact, error)
}

// ContactService manages the contacts of one owner. Every method takes the
// owner's user id and never touches another user's rows.
type ContactService interface {
	List(ctx context.Context, userID uint64, req *types.ListContactsRequest) ([]*entity.Contact, error)
	Get(ctx context.Context, userID, id uint64) (*entity.Contact, error)
	Create(ctx context.Context, userID uint64, req *types.ContactRequest) (*entity.Contact, error)
	Update(ctx context.Context, userID, id uint64, req *types.ContactRequest) (*entity.Contact, error)
	SetFavorite(ctx context.Context, userID, id uint64, req *types.FavoriteRequest) (*entity.Contact, error)
	Delete(ctx context.Context, userID, id uint64) (*entity.Contact, error)
	Search(ctx context.Context, userID uint64, req *types.SearchContactsRequest) ([]*entity.Contact, error)
	Birthdays(ctx context.Context, userID uint64, req *types.BirthdaysRequest) ([]*entity.Contact, error)
}

type ContactServiceOption func(*contactService)

type contactService struct {
	contactRepo contactRepository
	phoneRegion string
	now         func() time.Time
}

func NewContactService(contactRepo contactRepository, phoneRegion string, opts ...ContactServiceOption) ContactService {
	svc := &contactService{
		contactRepo: contactRepo,
		phoneRegion: phoneRegion,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithContactClock replaces the clock used for the birthday window.
func WithContactClock(now func() time.Time) ContactServiceOption {
	return func(s *contactService) {
		if now != nil {
			s.now = now
		}
	}
}

func (s *contactService) List(ctx context.Context, userID uint64, req *types.ListContactsRequest) ([]*entity.Contact, error) {
	return s.contactRepo.List(ctx, userID, req.Favorite, req.Skip, req.Limit)
}

func (s *contactService) Get(ctx context.Context, userID, id uint64) (*entity.Contact, error) {
	contact, err := s.contactRepo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrContactNotFound
	}
	return contact, nil
}

func (s *contactService) Create(ctx context.Context, userID uint64, req *types.ContactRequest) (*entity.Contact, error) {
	existing, err := s.contactRepo.FindByEmail(ctx, userID, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrContactExists
	}

	now := s.now()
	contact := &entity.Contact{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.apply(contact, req)

	if err = s.contactRepo.Create(ctx, contact); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrContactExists
		}
		return nil, err
	}

	return contact, nil
}

func (s *contactService) Update(ctx context.Context, userID, id uint64, req *types.ContactRequest) (*entity.Contact, error) {
	contact, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(contact.Email, req.Email) {
		other, err := s.contactRepo.FindByEmail(ctx, userID, req.Email)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != contact.ID {
			return nil, ErrContactExists
		}
	}

	s.apply(contact, req)
	if err = s.contactRepo.Update(ctx, contact); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrContactExists
		}
		return nil, err
	}

	return contact, nil
}

func (s *contactService) SetFavorite(ctx context.Context, userID, id uint64, req *types.FavoriteRequest) (*entity.Contact, error) {
	contact, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	contact.Favorite = req.Favorite
	if err = s.contactRepo.UpdateFavorite(ctx, contact); err != nil {
		return nil, err
	}

	return contact, nil
}

// Delete returns the removed contact.
func (s *contactService) Delete(ctx context.Context, userID, id uint64) (*entity.Contact, error) {
	contact, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	removed, err := s.contactRepo.Delete(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, ErrContactNotFound
	}

	return contact, nil
}

func (s *contactService) Search(ctx context.Context, userID uint64, req *types.SearchContactsRequest) ([]*entity.Contact, error) {
	return s.contactRepo.Search(ctx, userID, repository.ContactSearch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Skip:      req.Skip,
		Limit:     req.Limit,
	})
}

// Birthdays returns contacts whose birthday falls between today and
// today+days inclusive, ignoring the birth year.
func (s *contactService) Birthdays(ctx context.Context, userID uint64, req *types.BirthdaysRequest) ([]*entity.Contact, error) {
	return s.contactRepo.FindByBirthdays(ctx, userID, BirthdayWindow(s.now(), req.Days), req.Skip, req.Limit)
}

// BirthdayWindow lists the "MM-DD" values from today through today+days.
// In a non-leap year a window covering February 28 also matches February 29.
func BirthdayWindow(today time.Time, days int) []string {
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	seen := make(map[string]struct{}, days+2)
	out := make([]string, 0, days+2)
	add := func(md string) {
		if _, ok := seen[md]; ok {
			return
		}
		seen[md] = struct{}{}
		out = append(out, md)
	}

	for i := 0; i <= days; i++ {
		day := start.AddDate(0, 0, i)
		add(day.Format("01-02"))
		if day.Month() == time.February && day.Day() == 28 && !isLeap(day.Year()) {
			add("02-29")
		}
	}
	return out
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func (s *contactService) apply(contact *entity.Contact, req *types.ContactRequest) {
	contact.FirstName = req.FirstName
	contact.LastName = req.LastName
	contact.Email = req.Email
	contact.Phone = s.normalizePhone(req.Phone)
	contact.Comments = optionalString(req.Comments)
	contact.Favorite = req.Favorite

	if birthday, ok := req.BirthdayTime(); ok {
		contact.Birthday = sql.NullTime{Time: birthday, Valid: true}
	} else {
		contact.Birthday = sql.NullTime{}
	}
}

// normalizePhone stores numbers in E.164 form. A number that does not parse
// is kept as entered; the request was validated before reaching here.
func (s *contactService) normalizePhone(phone *string) sql.NullString {
	value := optionalString(phone)
	if !value.Valid {
		return value
	}

	num, err := phonenumbers.Parse(value.String, s.phoneRegion)
	if err != nil {
		return value
	}
	return sql.NullString{String: phonenumbers.Format(num, phonenumbers.E164), Valid: true}
}

func optionalString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: trimmed, Valid: true}
}
