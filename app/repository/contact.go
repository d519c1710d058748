package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/entity"
)

const contactColumns = `id, user_id, first_name, last_name, email, phone, birthday, comments, favorite, created_at, updated_at`

// ContactSearch holds the optional substring filters of a contact search.
// Non-empty filters are AND-combined and matched case-insensitively.
type ContactSearch struct {
	FirstName string
	LastName  string
	Email     string
	Skip      int
	Limit     int
}

// Every query is scoped by the owner's user id; a contact belonging to
// another user is indistinguishable from a missing one.
type ContactRepository struct {
	db DBTX
}

func NewContactRepository(db DBTX) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) List(ctx context.Context, userID uint64, favorite *bool, skip, limit int) ([]*entity.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id = ?`
	args := []interface{}{userID}
	if favorite != nil {
		query += ` AND favorite = ?`
		args = append(args, *favorite)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	return r.findMany(ctx, query, args...)
}

func (r *ContactRepository) FindByID(ctx context.Context, userID, id uint64) (*entity.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = ? AND user_id = ?`
	return r.findOne(ctx, query, id, userID)
}

func (r *ContactRepository) FindByEmail(ctx context.Context, userID uint64, email string) (*entity.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE email = ? AND user_id = ? LIMIT 1`
	return r.findOne(ctx, query, email, userID)
}

func (r *ContactRepository) Create(ctx context.Context, contact *entity.Contact) error {
	query := `
		INSERT INTO contacts (user_id, first_name, last_name, email, phone, birthday, comments, favorite, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		contact.UserID,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.Phone,
		contact.Birthday,
		contact.Comments,
		contact.Favorite,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	contact.ID = uint64(id)
	return nil
}

func (r *ContactRepository) Update(ctx context.Context, contact *entity.Contact) error {
	query := `
		UPDATE contacts SET
			first_name = ?,
			last_name = ?,
			email = ?,
			phone = ?,
			birthday = ?,
			comments = ?,
			favorite = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`
	contact.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.Phone,
		contact.Birthday,
		contact.Comments,
		contact.Favorite,
		contact.UpdatedAt,
		contact.ID,
		contact.UserID,
	)
	return translateError(err)
}

func (r *ContactRepository) UpdateFavorite(ctx context.Context, contact *entity.Contact) error {
	query := `UPDATE contacts SET favorite = ?, updated_at = ? WHERE id = ? AND user_id = ?`
	contact.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query, contact.Favorite, contact.UpdatedAt, contact.ID, contact.UserID)
	return err
}

// Delete returns the number of removed rows; zero means the contact did not
// exist for this owner.
func (r *ContactRepository) Delete(ctx context.Context, userID, id uint64) (int64, error) {
	query := `DELETE FROM contacts WHERE id = ? AND user_id = ?`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *ContactRepository) Search(ctx context.Context, userID uint64, filter ContactSearch) ([]*entity.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id = ?`
	args := []interface{}{userID}
	if filter.FirstName != "" {
		query += ` AND LOWER(first_name) LIKE ?`
		args = append(args, likePattern(filter.FirstName))
	}
	if filter.LastName != "" {
		query += ` AND LOWER(last_name) LIKE ?`
		args = append(args, likePattern(filter.LastName))
	}
	if filter.Email != "" {
		query += ` AND LOWER(email) LIKE ?`
		args = append(args, likePattern(filter.Email))
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Skip)

	return r.findMany(ctx, query, args...)
}

// FindByBirthdays returns contacts whose birthday falls on one of the given
// month-day values, formatted as "MM-DD".
func (r *ContactRepository) FindByBirthdays(ctx context.Context, userID uint64, monthDays []string, skip, limit int) ([]*entity.Contact, error) {
	if len(monthDays) == 0 {
		return []*entity.Contact{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(monthDays)), ", ")
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE user_id = ? AND birthday IS NOT NULL AND DATE_FORMAT(birthday, '%m-%d') IN (` + placeholders + `)
		ORDER BY id LIMIT ? OFFSET ?`

	args := make([]interface{}, 0, len(monthDays)+3)
	args = append(args, userID)
	for _, md := range monthDays {
		args = append(args, md)
	}
	args = append(args, limit, skip)

	return r.findMany(ctx, query, args...)
}

func (r *ContactRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Contact, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	contact, err := scanContact(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return contact, nil
}

func (r *ContactRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*entity.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]*entity.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows.Scan)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return contacts, nil
}

func scanContact(scan rowScanner) (*entity.Contact, error) {
	contact := &entity.Contact{}
	if err := scan(
		&contact.ID,
		&contact.UserID,
		&contact.FirstName,
		&contact.LastName,
		&contact.Email,
		&contact.Phone,
		&contact.Birthday,
		&contact.Comments,
		&contact.Favorite,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return contact, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(value string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(value)) + "%"
}
