package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/roomchat/internal/apperror"
	"github.com/sakif/roomchat/internal/model"
	"github.com/sakif/roomchat/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Create inserts a new user and sets user.ID to the generated row id.
//
// The UNIQUE constraint on users.email is the only duplicate check: a
// violation is translated into apperror.DuplicateEmail so callers never see
// the driver error.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	if user.Avatar == "" {
		user.Avatar = model.DefaultAvatar
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (name, email, password, about, avatar)
		 VALUES (?, ?, ?, ?, ?)`,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.About,
		user.Avatar,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateEmail()
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	user.ID = id

	return nil
}

// GetUserByID retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, email, password, about, avatar
		 FROM users WHERE id = ?`,
		id,
	)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by login email.
// Returns apperror.ErrNotFound if no user has that email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, email, password, about, avatar
		 FROM users WHERE email = ?`,
		email,
	)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// UpdateProfile overwrites the mutable profile fields.
func (db *DB) UpdateProfile(ctx context.Context, id int64, about, avatar string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET about = ?, avatar = ? WHERE id = ?`,
		about,
		avatar,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile of user %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.About,
		&u.Avatar,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
