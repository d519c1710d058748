package entity

import "time"

// ServiceKey is an API key issued to an internal service calling the gRPC
// identity endpoint. Only the SHA-256 hash of the raw key is stored.
type ServiceKey struct {
	ID          uint64
	ServiceName string
	KeyHash     string
	IsActive    bool
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
