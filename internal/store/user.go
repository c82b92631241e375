package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/contactskeeper/apiserver/types"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

const userColumns = `id, username, email, COALESCE(avatar, ''), confirmed, is_active, role, hashed_password, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Avatar,
		&user.Confirmed,
		&user.IsActive,
		&user.Role,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// Create inserts a new, unconfirmed user. A unique-constraint violation
// on username or email is reported as ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	user.IsActive = true

	const query = `
		INSERT INTO users (username, email, hashed_password, avatar, confirmed, is_active, role, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.HashedPassword,
		user.Avatar,
		user.Confirmed,
		user.IsActive,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// ConfirmEmail marks the user with the given email as confirmed.
func (r *UserRepository) ConfirmEmail(ctx context.Context, email string) error {
	const query = `UPDATE users SET confirmed = TRUE, updated_at = $1 WHERE email = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now(), email)
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

// UpdateAvatar stores a new avatar URL for the user with the given
// email and returns the updated row.
func (r *UserRepository) UpdateAvatar(ctx context.Context, email, avatarURL string) (types.User, error) {
	const query = `
		UPDATE users SET avatar = NULLIF($1, ''), updated_at = $2
		WHERE email = $3
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, avatarURL, time.Now(), email))
}

// UpdateRole changes the role of the user with the given email and
// returns the updated row.
func (r *UserRepository) UpdateRole(ctx context.Context, email, role string) (types.User, error) {
	const query = `
		UPDATE users SET role = $1, updated_at = $2
		WHERE email = $3
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, role, time.Now(), email))
}

// UpdatePassword replaces the stored password hash for the user with
// the given email.
func (r *UserRepository) UpdatePassword(ctx context.Context, email, hashedPassword string) error {
	const query = `UPDATE users SET hashed_password = $1, updated_at = $2 WHERE email = $3`
	result, err := r.db.ExecContext(ctx, query, hashedPassword, time.Now(), email)
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

// Update rewrites the mutable fields of a user row.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			avatar = NULLIF($3, ''),
			confirmed = $4,
			is_active = $5,
			role = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Avatar,
		user.Confirmed,
		user.IsActive,
		user.Role,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// Delete removes a user. Contacts owned by the user cascade-delete at
// the database level.
func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
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
