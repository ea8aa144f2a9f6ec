// Package subject holds the registry of subject names that QR sessions can be
// minted against.
package subject

import (
	"context"
	"errors"
)

var ErrDuplicateKey = errors.New("subject already exists")

type repo interface {
	InsertSubject(ctx context.Context, name string) error
	SubjectExists(ctx context.Context, name string) (bool, error)
	ListSubjects(ctx context.Context) ([]string, error)
}

// Registry is the set of known subject names.
type Registry struct {
	repo repo
}

// NewRegistry creates a registry backed by a repository.
func NewRegistry(r repo) *Registry {
	return &Registry{repo: r}
}

// Add registers a subject name. Fails with ErrDuplicateKey when it is already known.
func (g *Registry) Add(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("subject name required")
	}
	return g.repo.InsertSubject(ctx, name)
}

// Exists reports whether a subject is registered.
func (g *Registry) Exists(ctx context.Context, name string) (bool, error) {
	return g.repo.SubjectExists(ctx, name)
}

// List returns all registered subject names.
func (g *Registry) List(ctx context.Context) ([]string, error) {
	return g.repo.ListSubjects(ctx)
}
