// Package qrsession manages the short-lived check-in sessions behind the QR
// codes handed out to a class. A session is bound to one subject and is
// redeemable only within a fixed window after minting.
package qrsession

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownSubject  = errors.New("unknown subject")
)

// Session is one minted QR token. IsActive starts true and only ever flips to
// false; the time window on CreatedAt is what actually decides expiry, the
// flag is a lazily maintained cache of it.
type Session struct {
	ID        int64     `json:"session_id"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// CheckStatus is the outcome of an expiry check.
type CheckStatus int

const (
	CheckValid CheckStatus = iota
	CheckExpired
	CheckNotFound
)

// Check carries the status and, when valid, the subject the session was minted for.
type Check struct {
	Status  CheckStatus
	Subject string
}

type repo interface {
	InsertSession(ctx context.Context, subject string, createdAt time.Time) (int64, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	DeactivateSession(ctx context.Context, id int64) error
}

type subjects interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Manager mints sessions and owns the is_active latch.
type Manager struct {
	repo     repo
	subjects subjects
	window   time.Duration
	now      func() time.Time
}

// NewManager creates a manager with the given validity window.
func NewManager(r repo, subs subjects, window time.Duration) *Manager {
	if window <= 0 {
		window = time.Minute
	}
	return &Manager{repo: r, subjects: subs, window: window, now: time.Now}
}

// Mint allocates a new active session for a registered subject. Ids are
// allocated by the store and never reused.
func (m *Manager) Mint(ctx context.Context, subject string) (Session, error) {
	ok, err := m.subjects.Exists(ctx, subject)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrUnknownSubject
	}
	createdAt := m.now().UTC()
	id, err := m.repo.InsertSession(ctx, subject, createdAt)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, Subject: subject, CreatedAt: createdAt, IsActive: true}, nil
}

// Lookup returns a session by id.
func (m *Manager) Lookup(ctx context.Context, id int64) (Session, error) {
	return m.repo.GetSession(ctx, id)
}

// ExpiresAt returns the end of a session's validity window.
func (m *Manager) ExpiresAt(s Session) time.Time {
	return s.CreatedAt.Add(m.window)
}

// CheckAndExpire decides whether a session is still redeemable. A session past
// its window is reported expired and its is_active flag is persisted false as
// a side effect; the flip is an idempotent update, so concurrent checks of the
// same session converge on the same result. An inactive session inside the
// window is treated as expired as well.
func (m *Manager) CheckAndExpire(ctx context.Context, id int64) (Check, error) {
	s, err := m.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Check{Status: CheckNotFound}, nil
		}
		return Check{}, err
	}
	if m.now().Sub(s.CreatedAt) >= m.window {
		if err := m.repo.DeactivateSession(ctx, id); err != nil {
			return Check{}, err
		}
		return Check{Status: CheckExpired}, nil
	}
	if !s.IsActive {
		return Check{Status: CheckExpired}, nil
	}
	return Check{Status: CheckValid, Subject: s.Subject}, nil
}

// TokenFor encodes a session id as the opaque token carried by the QR payload.
func TokenFor(id int64) string {
	return strconv.FormatInt(id, 36)
}

// ParseToken decodes a token back to a session id.
func ParseToken(token string) (int64, error) {
	id, err := strconv.ParseInt(token, 36, 64)
	if err != nil || id <= 0 {
		return 0, ErrSessionNotFound
	}
	return id, nil
}
