package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/contactskeeper/apiserver/types"
)

const contactColumns = `id, first_name, last_name, email, phone_number, birthday, COALESCE(additional_data, ''), user_id, created_at, updated_at`

// ContactRepository handles persistence for contacts. Every query that
// acts on behalf of a user filters by user_id, so rows owned by other
// users are unreachable by construction.
type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func scanContactRows(rows *sql.Rows, capacity int) ([]types.Contact, error) {
	contacts := make([]types.Contact, 0, capacity)
	for rows.Next() {
		var contact types.Contact
		if err := rows.Scan(
			&contact.ID,
			&contact.FirstName,
			&contact.LastName,
			&contact.Email,
			&contact.PhoneNumber,
			&contact.Birthday,
			&contact.AdditionalData,
			&contact.UserID,
			&contact.CreatedAt,
			&contact.UpdatedAt,
		); err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (r *ContactRepository) List(ctx context.Context, userID, skip, limit int) ([]types.Contact, error) {
	if skip < 0 {
		skip = 0
	}
	if limit < 1 {
		limit = 100
	}

	const query = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		ORDER BY id
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, userID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanContactRows(rows, limit)
}

func (r *ContactRepository) Get(ctx context.Context, userID, id int) (types.Contact, error) {
	const query = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE id = $1 AND user_id = $2`
	var contact types.Contact
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&contact.ID,
		&contact.FirstName,
		&contact.LastName,
		&contact.Email,
		&contact.PhoneNumber,
		&contact.Birthday,
		&contact.AdditionalData,
		&contact.UserID,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Contact{}, ErrNotFound
		}
		return types.Contact{}, err
	}
	return contact, nil
}

func (r *ContactRepository) Create(ctx context.Context, contact types.Contact) (types.Contact, error) {
	now := time.Now()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	const query = `
		INSERT INTO contacts (first_name, last_name, email, phone_number, birthday, additional_data, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.PhoneNumber,
		contact.Birthday,
		contact.AdditionalData,
		contact.UserID,
		contact.CreatedAt,
		contact.UpdatedAt,
	).Scan(&contact.ID); err != nil {
		return types.Contact{}, err
	}
	return contact, nil
}

// Update merges the non-nil fields of upd into the contact and rewrites
// the row. The update is scoped to the owning user.
func (r *ContactRepository) Update(ctx context.Context, userID, id int, upd types.ContactUpdate) (types.Contact, error) {
	contact, err := r.Get(ctx, userID, id)
	if err != nil {
		return types.Contact{}, err
	}

	if upd.FirstName != nil {
		contact.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		contact.LastName = *upd.LastName
	}
	if upd.Email != nil {
		contact.Email = *upd.Email
	}
	if upd.PhoneNumber != nil {
		contact.PhoneNumber = *upd.PhoneNumber
	}
	if upd.Birthday != nil {
		contact.Birthday = *upd.Birthday
	}
	if upd.AdditionalData != nil {
		contact.AdditionalData = *upd.AdditionalData
	}
	contact.UpdatedAt = time.Now()

	const query = `
		UPDATE contacts
		SET first_name = $1,
			last_name = $2,
			email = $3,
			phone_number = $4,
			birthday = $5,
			additional_data = $6,
			updated_at = $7
		WHERE id = $8 AND user_id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.PhoneNumber,
		contact.Birthday,
		contact.AdditionalData,
		contact.UpdatedAt,
		id,
		userID,
	)
	if err != nil {
		return types.Contact{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Contact{}, err
	}
	if affected == 0 {
		return types.Contact{}, ErrNotFound
	}
	return contact, nil
}

func (r *ContactRepository) Delete(ctx context.Context, userID, id int) error {
	const query = `DELETE FROM contacts WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Search matches text case-insensitively against name, email, phone,
// birthday, and notes fields, scoped to the owning user.
func (r *ContactRepository) Search(ctx context.Context, userID int, text string, skip, limit int) ([]types.Contact, error) {
	if skip < 0 {
		skip = 0
	}
	if limit < 1 {
		limit = 100
	}

	const query = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
			AND (first_name ILIKE $2
				OR last_name ILIKE $2
				OR email ILIKE $2
				OR phone_number ILIKE $2
				OR birthday::text ILIKE $2
				OR additional_data ILIKE $2)
		ORDER BY id
		OFFSET $3 LIMIT $4`
	rows, err := r.db.QueryContext(ctx, query, userID, "%"+text+"%", skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanContactRows(rows, limit)
}

// UpcomingBirthdays returns the contacts whose birthday falls within
// the next days days, comparing month and day only since birth years
// differ from the current year. The window may wrap across December 31.
func (r *ContactRepository) UpcomingBirthdays(ctx context.Context, userID, days int) ([]types.Contact, error) {
	if days < 0 {
		days = 0
	}

	// A window of a full year or more covers every possible birthday.
	if days >= 365 {
		const query = `
			SELECT ` + contactColumns + `
			FROM contacts
			WHERE user_id = $1
			ORDER BY id`
		rows, err := r.db.QueryContext(ctx, query, userID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanContactRows(rows, 16)
	}

	from, to, wrapped := birthdayWindow(time.Now(), days)

	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
			AND to_char(birthday, 'MMDD') BETWEEN $2 AND $3
		ORDER BY id`
	if wrapped {
		query = `
			SELECT ` + contactColumns + `
			FROM contacts
			WHERE user_id = $1
				AND (to_char(birthday, 'MMDD') >= $2 OR to_char(birthday, 'MMDD') <= $3)
			ORDER BY id`
	}

	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanContactRows(rows, 16)
}

// ListAll returns every contact in the system regardless of owner.
// Reserved for the admin surface.
func (r *ContactRepository) ListAll(ctx context.Context) ([]types.Contact, error) {
	const query = `SELECT ` + contactColumns + ` FROM contacts ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanContactRows(rows, 64)
}

// birthdayWindow computes the inclusive MMDD bounds of the birthday
// window starting at today and extending days days. wrapped reports
// that the window crosses a year boundary, in which case the bounds
// must be combined with OR instead of BETWEEN.
func birthdayWindow(today time.Time, days int) (from, to string, wrapped bool) {
	const layout = "0102"
	from = today.Format(layout)
	to = today.AddDate(0, 0, days).Format(layout)
	return from, to, to < from
}
