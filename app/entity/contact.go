package entity

import (
	"database/sql"
	"time"
)

type Contact struct {
	ID        uint64
	UserID    uint64
	FirstName string
	LastName  string
	Email     string
	Phone     sql.NullString
	Birthday  sql.NullTime
	Comments  sql.NullString
	Favorite  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
