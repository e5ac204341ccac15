package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"futurehuman/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// isUniqueViolation matches the sqlite unique-index error text; the driver
// does not expose a typed error for it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,email,display_name,password_hash,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Email, nullable(u.DisplayName), u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var display sql.NullString
	err := row.Scan(&u.ID, &u.Email, &display, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if display.Valid {
		u.DisplayName = display.String
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,display_name,password_hash,created_at FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,email,display_name,password_hash,created_at FROM users WHERE email=?`, email))
}

func (r Repo) UpdateUser(ctx context.Context, id string, displayName *string) error {
	if displayName == nil {
		return nil
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET display_name=? WHERE id=?`, nullable(*displayName), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
