package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthguard/surveillance/internal/store/core"
)

const userColumns = `
	id, username, email, password_hash, role, account_id, active, created_at`

func scanUser(row rowScanner, u *core.User) error {
	return row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.Role, &u.AccountID, &u.Active, &u.CreatedAt)
}

// CreateUser inserts a principal. Duplicate username or email maps to
// ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()

	const q = `
		INSERT INTO app_user (id, username, email, password_hash, role, account_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q, u.ID, u.Username, u.Email, u.PasswordHash,
		u.Role, u.AccountID, u.Active, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username or email already in use", core.ErrConflict)
		}
		return err
	}
	return nil
}

// GetUserByUsername resolves a login identifier: username first, then
// email, both case-insensitive.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	const q = `
		SELECT ` + userColumns + `
		FROM app_user
		WHERE lower(username) = lower($1) OR lower(email) = lower($1)
		LIMIT 1`

	var u core.User
	if err := scanUser(s.pool.QueryRow(ctx, q, username), &u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	const q = `SELECT ` + userColumns + ` FROM app_user WHERE id = $1`

	var u core.User
	if err := scanUser(s.pool.QueryRow(ctx, q, id), &u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UpdateUserPassword persists the new hash. Outstanding tokens stay
// valid until they expire.
func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	const q = `UPDATE app_user SET password_hash = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
