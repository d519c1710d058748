package entity

import (
	"database/sql"
	"time"
)

type User struct {
	ID           uint64
	Username     string
	Email        string
	PasswordHash string
	Confirmed    bool
	RefreshToken sql.NullString
	Avatar       sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
