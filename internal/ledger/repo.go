package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertRecord writes a new attendance row. The UNIQUE constraint on
// (student_id, subject, date) makes the duplicate check and the insert one
// atomic statement; a conflicting row reports false with no error.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, student_name, subject, date, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, subject, date) DO NOTHING
	`, rec.ID, rec.StudentID, rec.StudentName, rec.Subject, rec.Date, rec.RecordedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasRecord reports whether an entry exists for the uniqueness key.
func (r *Repository) HasRecord(ctx context.Context, studentID, subject string, date time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance WHERE student_id = $1 AND subject = $2 AND date = $3
		)
	`, studentID, subject, date).Scan(&exists)
	return exists, err
}

// ListRecords returns records with basic filters. Empty subject and zero date
// mean no filter.
func (r *Repository) ListRecords(ctx context.Context, subject string, date time.Time) ([]Record, error) {
	query := `SELECT id, student_id, student_name, subject, date, recorded_at FROM attendance`
	args := []any{}
	clauses := []string{}
	if subject != "" {
		args = append(args, subject)
		clauses = append(clauses, fmt.Sprintf("subject = $%d", len(args)))
	}
	if !date.IsZero() {
		args = append(args, date)
		clauses = append(clauses, fmt.Sprintf("date = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date, recorded_at, student_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.Subject, &rec.Date, &rec.RecordedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
