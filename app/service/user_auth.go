package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/dto"
	"github.com/vibast-solutions/ms-go-phonebook/app/entity"
	"github.com/vibast-solutions/ms-go-phonebook/app/mail"
	"github.com/vibast-solutions/ms-go-phonebook/app/metrics"
	"github.com/vibast-solutions/ms-go-phonebook/app/repository"
	"github.com/vibast-solutions/ms-go-phonebook/app/security"
	"github.com/vibast-solutions/ms-go-phonebook/app/token"
	"github.com/vibast-solutions/ms-go-phonebook/app/types"
	"github.com/vibast-solutions/ms-go-phonebook/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists           = errors.New("account already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountNotConfirmed  = errors.New("email not confirmed")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrVerification         = errors.New("verification error")
	ErrWeakPassword         = errors.New("password does not meet policy requirements")
	ErrInvalidUsername      = errors.New("username does not meet policy requirements")
	ErrAvatarUploadDisabled = errors.New("avatar upload is not configured")
)

const (
	confirmationSubject = "Confirm your email"
	missingUserPassword = "phonebook-missing-user"
	sideChannelTimeout  = 30 * time.Second
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	SetConfirmed(ctx context.Context, email string) error
	UpdateRefreshToken(ctx context.Context, userID uint64, token sql.NullString) error
	UpdateAvatar(ctx context.Context, email, url string) error
}

// AvatarLookup finds a public avatar for an email address.
type AvatarLookup interface {
	Lookup(ctx context.Context, email string) (string, error)
}

// ImageStore uploads an image under key and returns its public URL.
type ImageStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type UserAuthService interface {
	Signup(ctx context.Context, req *types.SignupRequest) (*entity.User, error)
	Login(ctx context.Context, req *types.LoginRequest) (*types.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*types.TokenResponse, error)
	Logout(ctx context.Context, user *entity.User) error
	ConfirmEmail(ctx context.Context, confirmationToken string) (*dto.ConfirmEmailResult, error)
	RequestEmail(ctx context.Context, req *types.RequestEmailRequest) error
	ResolveCurrentUser(ctx context.Context, accessToken string) (*entity.User, error)
	UpdateAvatar(ctx context.Context, user *entity.User, url string) (*entity.User, error)
	UploadAvatar(ctx context.Context, user *entity.User, upload *types.AvatarUpload) (*entity.User, error)
}

type AsyncRunner func(task func())

type UserAuthServiceOption func(*userAuthService)

type userAuthService struct {
	userRepo    userRepository
	cfg         *config.Config
	codec       *token.Codec
	hasher      security.PasswordHasher
	mailer      mail.Sender
	avatars     AvatarLookup
	images      ImageStore
	metrics     *metrics.Metrics
	asyncRunner AsyncRunner

	missingOnce   sync.Once
	missingDigest string
}

func NewUserAuthService(userRepo userRepository, cfg *config.Config, opts ...UserAuthServiceOption) UserAuthService {
	svc := &userAuthService{
		userRepo: userRepo,
		cfg:      cfg,
		codec:    token.NewCodec(cfg.JWT.Secret),
		hasher:   security.NewBcryptHasher(bcrypt.DefaultCost),
		mailer:   mail.LogSender{},
		asyncRunner: func(task func()) {
			go task()
		},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithAsyncRunner(runner AsyncRunner) UserAuthServiceOption {
	return func(s *userAuthService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

func WithTokenCodec(codec *token.Codec) UserAuthServiceOption {
	return func(s *userAuthService) {
		if codec != nil {
			s.codec = codec
		}
	}
}

func WithPasswordHasher(hasher security.PasswordHasher) UserAuthServiceOption {
	return func(s *userAuthService) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

func WithMailSender(sender mail.Sender) UserAuthServiceOption {
	return func(s *userAuthService) {
		if sender != nil {
			s.mailer = sender
		}
	}
}

// WithAvatarLookup enables the best-effort avatar lookup on signup.
func WithAvatarLookup(lookup AvatarLookup) UserAuthServiceOption {
	return func(s *userAuthService) {
		s.avatars = lookup
	}
}

// WithImageStore enables avatar uploads.
func WithImageStore(store ImageStore) UserAuthServiceOption {
	return func(s *userAuthService) {
		s.images = store
	}
}

func WithMetrics(m *metrics.Metrics) UserAuthServiceOption {
	return func(s *userAuthService) {
		s.metrics = m
	}
}

func (s *userAuthService) Signup(ctx context.Context, req *types.SignupRequest) (user *entity.User, err error) {
	defer func() { s.observe("signup", err) }()

	existing, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	if err = s.cfg.Password.Policy.ValidateUsername(req.Username); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUsername, err.Error())
	}
	if err = s.cfg.Password.Policy.Validate(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user = &entity.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: digest,
		Confirmed:    false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if url := s.lookupAvatar(ctx, req.Email); url != "" {
		user.Avatar = sql.NullString{String: url, Valid: true}
	}

	if err = s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.sendConfirmation(user.Email, user.Username)
	return user, nil
}

func (s *userAuthService) Login(ctx context.Context, req *types.LoginRequest) (res *types.TokenResponse, err error) {
	defer func() { s.observe("login", err) }()

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.verifyMissingUser(req.Password)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.Confirmed {
		return nil, ErrAccountNotConfirmed
	}

	return s.issueTokenPair(ctx, user)
}

// verifyMissingUser runs one password comparison against a throwaway digest
// so an unknown email costs as much as a wrong password.
func (s *userAuthService) verifyMissingUser(password string) {
	s.missingOnce.Do(func() {
		digest, err := s.hasher.Hash(missingUserPassword)
		if err != nil {
			logrus.WithError(err).Warn("failed to prepare placeholder password digest")
			return
		}
		s.missingDigest = digest
	})
	s.hasher.Verify(password, s.missingDigest)
}

// Refresh accepts only the refresh token currently stored for the user, so a
// token superseded by a later login, refresh or logout is rejected.
func (s *userAuthService) Refresh(ctx context.Context, refreshToken string) (res *types.TokenResponse, err error) {
	defer func() { s.observe("refresh", err) }()

	email, err := s.codec.Decode(refreshToken, token.ScopeRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.RefreshToken.Valid {
		return nil, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(user.RefreshToken.String), []byte(refreshToken)) != 1 {
		return nil, ErrInvalidToken
	}

	return s.issueTokenPair(ctx, user)
}

func (s *userAuthService) Logout(ctx context.Context, user *entity.User) error {
	if err := s.userRepo.UpdateRefreshToken(ctx, user.ID, sql.NullString{}); err != nil {
		return err
	}
	user.RefreshToken = sql.NullString{}
	return nil
}

// ConfirmEmail is idempotent: a second valid link for a confirmed account
// reports AlreadyConfirmed and writes nothing.
func (s *userAuthService) ConfirmEmail(ctx context.Context, confirmationToken string) (res *dto.ConfirmEmailResult, err error) {
	defer func() { s.observe("confirm_email", err) }()

	email, err := s.codec.Decode(confirmationToken, token.ScopeEmail)
	if err != nil {
		return nil, ErrVerification
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrVerification
	}
	if user.Confirmed {
		return &dto.ConfirmEmailResult{Email: user.Email, AlreadyConfirmed: true}, nil
	}

	if err = s.userRepo.SetConfirmed(ctx, user.Email); err != nil {
		return nil, err
	}

	return &dto.ConfirmEmailResult{Email: user.Email}, nil
}

// RequestEmail re-sends the confirmation mail for an unconfirmed account.
// The result is the same whether or not the account exists.
func (s *userAuthService) RequestEmail(ctx context.Context, req *types.RequestEmailRequest) error {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if user == nil || user.Confirmed {
		return nil
	}

	s.sendConfirmation(user.Email, user.Username)
	return nil
}

func (s *userAuthService) ResolveCurrentUser(ctx context.Context, accessToken string) (*entity.User, error) {
	email, err := s.codec.Decode(accessToken, token.ScopeAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	return user, nil
}

func (s *userAuthService) UpdateAvatar(ctx context.Context, user *entity.User, url string) (*entity.User, error) {
	if err := s.userRepo.UpdateAvatar(ctx, user.Email, url); err != nil {
		return nil, err
	}

	user.Avatar = sql.NullString{String: url, Valid: true}
	return user, nil
}

// UploadAvatar stores the image under a per-user key, overwriting any
// previous upload, and records its URL on the user.
func (s *userAuthService) UploadAvatar(ctx context.Context, user *entity.User, upload *types.AvatarUpload) (*entity.User, error) {
	if s.images == nil {
		return nil, ErrAvatarUploadDisabled
	}

	url, err := s.images.Upload(ctx, AvatarKey(user), upload.Data, upload.ContentType)
	if err != nil {
		return nil, err
	}

	return s.UpdateAvatar(ctx, user, url)
}

// AvatarKey is the object key of a user's uploaded avatar.
func AvatarKey(user *entity.User) string {
	return "contacts/" + user.Username + "-" + strconv.FormatUint(user.ID, 10)
}

func (s *userAuthService) issueTokenPair(ctx context.Context, user *entity.User) (*types.TokenResponse, error) {
	accessToken, err := s.codec.Issue(user.Email, token.ScopeAccess, s.cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.codec.Issue(user.Email, token.ScopeRefresh, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	stored := sql.NullString{String: refreshToken, Valid: true}
	if err = s.userRepo.UpdateRefreshToken(ctx, user.ID, stored); err != nil {
		return nil, err
	}
	user.RefreshToken = stored

	return &types.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    types.TokenTypeBearer,
	}, nil
}

// lookupAvatar never fails: errors and panics in the lookup leave the
// avatar empty.
func (s *userAuthService) lookupAvatar(ctx context.Context, email string) (url string) {
	if s.avatars == nil {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("email", email).WithField("panic", r).Warn("avatar lookup panicked")
			s.metrics.SideChannelFailure("avatar")
			url = ""
		}
	}()

	url, err := s.avatars.Lookup(ctx, email)
	if err != nil {
		logrus.WithError(err).WithField("email", email).Debug("avatar lookup failed")
		s.metrics.SideChannelFailure("avatar")
		return ""
	}
	return url
}

func (s *userAuthService) sendConfirmation(email, username string) {
	s.asyncRunner(func() {
		mailCtx, cancel := context.WithTimeout(context.Background(), sideChannelTimeout)
		defer cancel()

		confirmToken, err := s.codec.Issue(email, token.ScopeEmail, s.cfg.JWT.ConfirmTokenTTL)
		if err != nil {
			logrus.WithError(err).WithField("email", email).Error("failed to issue confirmation token")
			s.metrics.SideChannelFailure("mail")
			return
		}

		data := mail.ConfirmationData{
			Username: username,
			Host:     s.cfg.Mail.BaseURL,
			Token:    confirmToken,
		}
		if err = s.mailer.Send(mailCtx, email, confirmationSubject, mail.ConfirmationTemplate, data); err != nil {
			logrus.WithError(err).WithField("email", email).Error("failed to send confirmation email")
			s.metrics.SideChannelFailure("mail")
		}
	})
}

func (s *userAuthService) observe(operation string, err error) {
	s.metrics.AuthOutcome(operation, outcomeOf(err))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrUserExists):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountNotConfirmed), errors.Is(err, ErrInvalidToken):
		return metrics.OutcomeUnauthorized
	case errors.Is(err, ErrVerification), errors.Is(err, ErrWeakPassword), errors.Is(err, ErrInvalidUsername):
		return metrics.OutcomeBadRequest
	default:
		return metrics.OutcomeError
	}
}
