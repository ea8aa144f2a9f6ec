package subject

import (
	"context"
	"database/sql"
)

// Repository persists subject names in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertSubject writes a subject row. Duplicate names map to ErrDuplicateKey.
func (r *Repository) InsertSubject(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO subjects (name)
		VALUES ($1)
		ON CONFLICT (name) DO NOTHING
	`, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// SubjectExists reports whether a subject row exists.
func (r *Repository) SubjectExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM subjects WHERE name = $1)
	`, name).Scan(&exists)
	return exists, err
}

// ListSubjects returns all subject names ordered alphabetically.
func (r *Repository) ListSubjects(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
