package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/entity"
)

const userColumns = `id, username, email, password_hash, confirmed, refresh_token, avatar, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user and fills in its ID. A second account with the same
// email fails with ErrDuplicate through the unique key on users.email.
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, confirmed, avatar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Confirmed,
		user.Avatar,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.findOne(ctx, query, email)
}

// SetConfirmed only ever moves confirmed from false to true.
func (r *UserRepository) SetConfirmed(ctx context.Context, email string) error {
	query := `UPDATE users SET confirmed = 1, updated_at = ? WHERE email = ?`
	_, err := r.db.ExecContext(ctx, query, time.Now(), email)
	return err
}

// UpdateRefreshToken replaces the stored refresh token. An invalid token
// clears the column.
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, userID uint64, token sql.NullString) error {
	query := `UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, token, time.Now(), userID)
	return err
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, email, url string) error {
	query := `UPDATE users SET avatar = ?, updated_at = ? WHERE email = ?`
	_, err := r.db.ExecContext(ctx, query, url, time.Now(), email)
	return err
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.User, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	user, err := scanUser(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return user, nil
}

func scanUser(scan rowScanner) (*entity.User, error) {
	user := &entity.User{}
	if err := scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Confirmed,
		&user.RefreshToken,
		&user.Avatar,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return user, nil
}
