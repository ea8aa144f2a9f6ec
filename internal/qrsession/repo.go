package qrsession

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository persists QR sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertSession writes a new active session and returns its allocated id.
// BIGSERIAL allocation keeps ids strictly increasing and never reused.
func (r *Repository) InsertSession(ctx context.Context, subject string, createdAt time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO qr_sessions (subject, created_at, is_active)
		VALUES ($1, $2, TRUE)
		RETURNING id
	`, subject, createdAt).Scan(&id)
	return id, err
}

// GetSession returns a single session by id.
func (r *Repository) GetSession(ctx context.Context, id int64) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, subject, created_at, is_active FROM qr_sessions WHERE id = $1
	`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.Subject, &s.CreatedAt, &s.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return s, nil
}

// DeactivateSession persists is_active = false. Setting it false again is a
// no-op, which is what makes concurrent expiry flips safe.
func (r *Repository) DeactivateSession(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE qr_sessions SET is_active = FALSE WHERE id = $1`, id)
	return err
}
