// Package ledger stores attendance records and enforces the one record per
// student, subject and day rule.
package ledger

import (
	"context"
	"time"

	"smartattend/internal/identity"
)

// Record is one attendance entry. The student name is a snapshot taken at
// write time so reports survive later identity changes.
type Record struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Subject     string    `json:"subject"`
	Date        time.Time `json:"date"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Result of a record attempt.
type Result int

const (
	Recorded Result = iota
	AlreadyRecorded
)

// PresenceEntry is one row of the who-showed-up report.
type PresenceEntry struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Status      string `json:"status"`
}

const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

type repo interface {
	// InsertRecord returns false without error when the uniqueness key is
	// already taken.
	InsertRecord(ctx context.Context, rec Record) (bool, error)
	HasRecord(ctx context.Context, studentID, subject string, date time.Time) (bool, error)
	ListRecords(ctx context.Context, subject string, date time.Time) ([]Record, error)
}

type students interface {
	Student(ctx context.Context, id string) (identity.Student, error)
	Students(ctx context.Context) ([]identity.Student, error)
}

// Service coordinates attendance writes and reporting.
type Service struct {
	repo     repo
	students students
}

// NewService creates a service backed by a repository and a student resolver.
func NewService(r repo, st students) *Service {
	return &Service{repo: r, students: st}
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HasRecorded reports whether the student already has an entry for the
// subject on the given day.
func (s *Service) HasRecorded(ctx context.Context, studentID, subject string, date time.Time) (bool, error) {
	return s.repo.HasRecord(ctx, studentID, subject, DateOf(date))
}

// Record writes one attendance entry for the student at the given instant.
// The check against an existing entry and the insert are a single atomic step
// in the store, so two racing calls for the same key produce exactly one
// Recorded. Unknown students fail with identity.ErrStudentNotFound.
func (s *Service) Record(ctx context.Context, studentID, subject string, at time.Time) (Result, Record, error) {
	st, err := s.students.Student(ctx, studentID)
	if err != nil {
		return 0, Record{}, err
	}
	rec := Record{
		StudentID:   st.ID,
		StudentName: st.Name,
		Subject:     subject,
		Date:        DateOf(at),
		RecordedAt:  at.UTC(),
	}
	inserted, err := s.repo.InsertRecord(ctx, rec)
	if err != nil {
		return 0, Record{}, err
	}
	if !inserted {
		return AlreadyRecorded, Record{}, nil
	}
	return Recorded, rec, nil
}

// Report returns attendance entries, optionally filtered by subject and/or
// day. Zero values skip the corresponding filter. Ordering is stable but not
// meaningful; sorting for display is the caller's concern.
func (s *Service) Report(ctx context.Context, subject string, date time.Time) ([]Record, error) {
	if !date.IsZero() {
		date = DateOf(date)
	}
	return s.repo.ListRecords(ctx, subject, date)
}

// Presence returns every known student marked Present or Absent for the
// subject on the given day.
func (s *Service) Presence(ctx context.Context, subject string, date time.Time) ([]PresenceEntry, error) {
	all, err := s.students.Students(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.ListRecords(ctx, subject, DateOf(date))
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(recs))
	for _, rec := range recs {
		present[rec.StudentID] = true
	}
	entries := make([]PresenceEntry, 0, len(all))
	for _, st := range all {
		status := StatusAbsent
		if present[st.ID] {
			status = StatusPresent
		}
		entries = append(entries, PresenceEntry{StudentID: st.ID, StudentName: st.Name, Status: status})
	}
	return entries, nil
}
