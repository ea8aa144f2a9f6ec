package identity

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists students and principals in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertStudent writes a new student row. Duplicate ids map to ErrDuplicateKey.
func (r *Repository) InsertStudent(ctx context.Context, s Student) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO students (student_id, display_name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id) DO NOTHING
	`, s.ID, s.Name, s.CreatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// GetStudent returns a single student by id.
func (r *Repository) GetStudent(ctx context.Context, id string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, display_name, created_at FROM students WHERE student_id = $1
	`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrStudentNotFound
		}
		return Student{}, err
	}
	return s, nil
}

// ListStudents returns all students ordered by id.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, display_name, created_at FROM students ORDER BY student_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// InsertPrincipal writes a new principal row. Duplicate usernames map to ErrDuplicateKey.
func (r *Repository) InsertPrincipal(ctx context.Context, p Principal) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO principals (username, password, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO NOTHING
	`, p.Username, p.Password, string(p.Role), p.CreatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// GetPrincipal returns a single principal by username.
func (r *Repository) GetPrincipal(ctx context.Context, username string) (Principal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT username, password, role, created_at FROM principals WHERE username = $1
	`, username)
	var p Principal
	var role string
	if err := row.Scan(&p.Username, &p.Password, &role, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, ErrPrincipalNotFound
		}
		return Principal{}, err
	}
	p.Role = Role(role)
	return p, nil
}
