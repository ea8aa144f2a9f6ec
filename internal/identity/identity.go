package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateKey       = errors.New("a record with this key already exists")
	ErrStudentNotFound    = errors.New("student not found")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Role gates management endpoints. There are only two of them.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
)

// Student is a registered student. Immutable once created.
type Student struct {
	ID        string    `json:"student_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is an admin or teacher login.
type Principal struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type repo interface {
	InsertStudent(ctx context.Context, s Student) error
	GetStudent(ctx context.Context, id string) (Student, error)
	ListStudents(ctx context.Context) ([]Student, error)
	InsertPrincipal(ctx context.Context, p Principal) error
	GetPrincipal(ctx context.Context, username string) (Principal, error)
}

// Service exposes student and principal management.
type Service struct {
	repo repo
}

// NewService creates a service backed by a repository.
func NewService(r repo) *Service {
	return &Service{repo: r}
}

// AddStudent registers a student. Fails with ErrDuplicateKey on a reused id.
func (s *Service) AddStudent(ctx context.Context, id, name string) (Student, error) {
	if id == "" || name == "" {
		return Student{}, errors.New("student id and name required")
	}
	st := Student{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	if err := s.repo.InsertStudent(ctx, st); err != nil {
		return Student{}, err
	}
	return st, nil
}

// Student resolves a student id to its record.
func (s *Service) Student(ctx context.Context, id string) (Student, error) {
	return s.repo.GetStudent(ctx, id)
}

// Students lists all registered students.
func (s *Service) Students(ctx context.Context) ([]Student, error) {
	return s.repo.ListStudents(ctx)
}

// AddPrincipal registers an admin or teacher login.
func (s *Service) AddPrincipal(ctx context.Context, username, password string, role Role) (Principal, error) {
	if username == "" || password == "" {
		return Principal{}, errors.New("username and password required")
	}
	if role != RoleAdmin && role != RoleTeacher {
		return Principal{}, errors.New("role must be admin or teacher")
	}
	p := Principal{Username: username, Password: password, Role: role, CreatedAt: time.Now().UTC()}
	if err := s.repo.InsertPrincipal(ctx, p); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Authenticate compares submitted credentials against the stored principal.
// Passwords are stored and compared as plain text, mirroring the legacy system
// this service replaces.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Principal, error) {
	p, err := s.repo.GetPrincipal(ctx, username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, err
	}
	if p.Password != password {
		return Principal{}, ErrInvalidCredentials
	}
	return p, nil
}
