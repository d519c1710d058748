package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/entity"
)

var (
	ErrInvalidServiceKey      = errors.New("invalid or expired service key")
	ErrServiceHasActiveKey    = errors.New("service already has an active key")
	ErrServiceHasNoActiveKey  = errors.New("service has no active key")
	ErrInvalidRegenerationTTL = errors.New("old key ttl must be longer than 5 minutes")
	ErrServiceNameRequired    = errors.New("service name is required")
)

const (
	serviceKeyPrefix   = "pbsvc_"
	serviceKeyLifetime = 100 // years
	minRegenerationTTL = 5 * time.Minute
)

type serviceKeyRepository interface {
	Create(ctx context.Context, key *entity.ServiceKey) error
	FindActiveByHash(ctx context.Context, keyHash string) (*entity.ServiceKey, error)
	FindActiveByServiceName(ctx context.Context, serviceName string, now time.Time) ([]*entity.ServiceKey, error)
	Update(ctx context.Context, key *entity.ServiceKey) error
}

// ServiceKeyService manages the API keys internal services present when
// calling the gRPC identity endpoint.
type ServiceKeyService interface {
	Validate(ctx context.Context, apiKey string) (string, error)
	Generate(ctx context.Context, serviceName string) (string, error)
	Deactivate(ctx context.Context, serviceName string) (int, error)
	Regenerate(ctx context.Context, serviceName string, oldKeyTTL time.Duration) (string, error)
}

type serviceKeyService struct {
	keyRepo serviceKeyRepository
}

func NewServiceKeyService(keyRepo serviceKeyRepository) ServiceKeyService {
	return &serviceKeyService{keyRepo: keyRepo}
}

// Validate returns the name of the service owning apiKey.
func (s *serviceKeyService) Validate(ctx context.Context, apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrInvalidServiceKey
	}

	key, err := s.keyRepo.FindActiveByHash(ctx, hashServiceKey(apiKey))
	if err != nil {
		return "", err
	}
	if key == nil {
		return "", ErrInvalidServiceKey
	}

	return key.ServiceName, nil
}

// Generate creates the first key of a service and returns it in clear. Only
// its hash is stored.
func (s *serviceKeyService) Generate(ctx context.Context, serviceName string) (string, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return "", ErrServiceNameRequired
	}

	activeKeys, err := s.keyRepo.FindActiveByServiceName(ctx, serviceName, time.Now())
	if err != nil {
		return "", err
	}
	if len(activeKeys) > 0 {
		return "", ErrServiceHasActiveKey
	}

	return s.createKey(ctx, serviceName, time.Now())
}

func (s *serviceKeyService) Deactivate(ctx context.Context, serviceName string) (int, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return 0, ErrServiceNameRequired
	}

	activeKeys, err := s.keyRepo.FindActiveByServiceName(ctx, serviceName, time.Now())
	if err != nil {
		return 0, err
	}
	if len(activeKeys) == 0 {
		return 0, ErrServiceHasNoActiveKey
	}

	now := time.Now()
	for _, key := range activeKeys {
		key.IsActive = false
		key.ExpiresAt = now
		key.UpdatedAt = now
		if err = s.keyRepo.Update(ctx, key); err != nil {
			return 0, err
		}
	}

	return len(activeKeys), nil
}

// Regenerate issues a new key and lets the current ones expire after
// oldKeyTTL so callers can roll over without downtime.
func (s *serviceKeyService) Regenerate(ctx context.Context, serviceName string, oldKeyTTL time.Duration) (string, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return "", ErrServiceNameRequired
	}
	if oldKeyTTL <= minRegenerationTTL {
		return "", ErrInvalidRegenerationTTL
	}

	activeKeys, err := s.keyRepo.FindActiveByServiceName(ctx, serviceName, time.Now())
	if err != nil {
		return "", err
	}
	if len(activeKeys) == 0 {
		return "", ErrServiceHasNoActiveKey
	}

	now := time.Now()
	expireOldAt := now.Add(oldKeyTTL)
	for _, key := range activeKeys {
		if key.ExpiresAt.Before(expireOldAt) {
			continue
		}
		key.ExpiresAt = expireOldAt
		key.UpdatedAt = now
		if err = s.keyRepo.Update(ctx, key); err != nil {
			return "", err
		}
	}

	return s.createKey(ctx, serviceName, now)
}

func (s *serviceKeyService) createKey(ctx context.Context, serviceName string, now time.Time) (string, error) {
	rawKey, keyHash, err := generateServiceKey()
	if err != nil {
		return "", err
	}

	key := &entity.ServiceKey{
		ServiceName: serviceName,
		KeyHash:     keyHash,
		IsActive:    true,
		ExpiresAt:   now.AddDate(serviceKeyLifetime, 0, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.keyRepo.Create(ctx, key); err != nil {
		return "", err
	}

	return rawKey, nil
}

func generateServiceKey() (string, string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	rawKey := serviceKeyPrefix + hex.EncodeToString(secret)
	return rawKey, hashServiceKey(rawKey), nil
}

func hashServiceKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
