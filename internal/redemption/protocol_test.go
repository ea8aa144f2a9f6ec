package redemption

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"smartattend/internal/identity"
	"smartattend/internal/ledger"
	"smartattend/internal/qrsession"
	"smartattend/internal/queue"
)

// The fakes below mirror the store semantics: session deactivation is an
// idempotent update and the attendance insert is atomic per uniqueness key.

type fakeSessionRepo struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]qrsession.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[int64]qrsession.Session)}
}

func (f *fakeSessionRepo) InsertSession(_ context.Context, subject string, createdAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sessions[f.nextID] = qrsession.Session{ID: f.nextID, Subject: subject, CreatedAt: createdAt, IsActive: true}
	return f.nextID, nil
}

func (f *fakeSessionRepo) GetSession(_ context.Context, id int64) (qrsession.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return qrsession.Session{}, qrsession.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessionRepo) DeactivateSession(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.IsActive = false
		f.sessions[id] = s
	}
	return nil
}

// seed inserts a session with a chosen mint time, letting tests age a token
// without touching clocks.
func (f *fakeSessionRepo) seed(subject string, createdAt time.Time) int64 {
	id, _ := f.InsertSession(context.Background(), subject, createdAt)
	return id
}

type fakeSubjects map[string]bool

func (f fakeSubjects) Exists(_ context.Context, name string) (bool, error) {
	return f[name], nil
}

type fakeLedgerRepo struct {
	mu   sync.Mutex
	rows map[string]ledger.Record
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{rows: make(map[string]ledger.Record)}
}

func (f *fakeLedgerRepo) key(studentID, subject string, date time.Time) string {
	return studentID + "|" + subject + "|" + date.Format("2006-01-02")
}

func (f *fakeLedgerRepo) InsertRecord(_ context.Context, rec ledger.Record) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(rec.StudentID, rec.Subject, rec.Date)
	if _, ok := f.rows[k]; ok {
		return false, nil
	}
	f.rows[k] = rec
	return true, nil
}

func (f *fakeLedgerRepo) HasRecord(_ context.Context, studentID, subject string, date time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[f.key(studentID, subject, date)]
	return ok, nil
}

func (f *fakeLedgerRepo) ListRecords(_ context.Context, subject string, date time.Time) ([]ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []ledger.Record
	for _, rec := range f.rows {
		if subject != "" && rec.Subject != subject {
			continue
		}
		if !date.IsZero() && !rec.Date.Equal(date) {
			continue
		}
		res = append(res, rec)
	}
	return res, nil
}

func (f *fakeLedgerRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeStudents map[string]string

func (f fakeStudents) Student(_ context.Context, id string) (identity.Student, error) {
	name, ok := f[id]
	if !ok {
		return identity.Student{}, identity.ErrStudentNotFound
	}
	return identity.Student{ID: id, Name: name}, nil
}

func (f fakeStudents) Students(_ context.Context) ([]identity.Student, error) {
	var all []identity.Student
	for id, name := range f {
		all = append(all, identity.Student{ID: id, Name: name})
	}
	return all, nil
}

type fixture struct {
	sessions *fakeSessionRepo
	rows     *fakeLedgerRepo
	events   *queue.InMemory
	protocol *Protocol
}

func newFixture() *fixture {
	sessions := newFakeSessionRepo()
	rows := newFakeLedgerRepo()
	events := queue.NewInMemory(8)
	manager := qrsession.NewManager(sessions, fakeSubjects{"Math": true}, time.Minute)
	attendance := ledger.NewService(rows, fakeStudents{"S1": "Alice", "S2": "Bob"})
	return &fixture{
		sessions: sessions,
		rows:     rows,
		events:   events,
		protocol: NewProtocol(manager, attendance, events),
	}
}

func (fx *fixture) redeem(t *testing.T, token, studentID string) Result {
	t.Helper()
	res, err := fx.protocol.Redeem(context.Background(), token, studentID)
	if err != nil {
		t.Fatalf("Redeem(%q, %q) error = %v", token, studentID, err)
	}
	return res
}

func TestRedeemAcceptThenDuplicate(t *testing.T) {
	fx := newFixture()
	id := fx.sessions.seed("Math", time.Now().UTC())
	token := qrsession.TokenFor(id)

	res := fx.redeem(t, token, "S1")
	if res.Outcome != Accepted {
		t.Fatalf("Redeem() outcome = %v, want Accepted", res.Outcome)
	}
	if res.Record.Subject != "Math" || res.Record.StudentName != "Alice" {
		t.Fatalf("accepted record wrong: %+v", res.Record)
	}
	if fx.rows.count() != 1 {
		t.Fatalf("row count = %d, want 1", fx.rows.count())
	}

	res = fx.redeem(t, token, "S1")
	if res.Outcome != DuplicateAttendance {
		t.Fatalf("second Redeem() outcome = %v, want DuplicateAttendance", res.Outcome)
	}
	if fx.rows.count() != 1 {
		t.Fatalf("row count after duplicate = %d, want 1", fx.rows.count())
	}
}

func TestRedeemExpiredTokenLatches(t *testing.T) {
	fx := newFixture()
	id := fx.sessions.seed("Math", time.Now().UTC().Add(-70*time.Second))
	token := qrsession.TokenFor(id)

	if res := fx.redeem(t, token, "S1"); res.Outcome != TokenExpired {
		t.Fatalf("Redeem() outcome = %v, want TokenExpired", res.Outcome)
	}
	s, err := fx.sessions.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if s.IsActive {
		t.Fatal("session still active after expired redemption")
	}

	// A later attempt by another student sees the same outcome, not InvalidToken.
	if res := fx.redeem(t, token, "S2"); res.Outcome != TokenExpired {
		t.Fatalf("later Redeem() outcome = %v, want TokenExpired", res.Outcome)
	}
	if fx.rows.count() != 0 {
		t.Fatalf("row count = %d, want 0", fx.rows.count())
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	fx := newFixture()
	fx.sessions.seed("Math", time.Now().UTC())

	tests := []struct {
		name  string
		token string
	}{
		{name: "unseen id", token: qrsession.TokenFor(99)},
		{name: "malformed", token: "%%%"},
		{name: "empty", token: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := fx.redeem(t, tt.token, "S1"); res.Outcome != InvalidToken {
				t.Fatalf("Redeem() outcome = %v, want InvalidToken", res.Outcome)
			}
		})
	}
	if fx.rows.count() != 0 {
		t.Fatalf("row count = %d, want 0", fx.rows.count())
	}
}

func TestRedeemUnknownStudent(t *testing.T) {
	fx := newFixture()
	id := fx.sessions.seed("Math", time.Now().UTC())

	res := fx.redeem(t, qrsession.TokenFor(id), "ghost")
	if res.Outcome != UnknownStudent {
		t.Fatalf("Redeem() outcome = %v, want UnknownStudent", res.Outcome)
	}
	if fx.rows.count() != 0 {
		t.Fatal("unknown student must not write a row")
	}
}

func TestRedeemPublishesCheckIn(t *testing.T) {
	fx := newFixture()
	id := fx.sessions.seed("Math", time.Now().UTC())

	if res := fx.redeem(t, qrsession.TokenFor(id), "S1"); res.Outcome != Accepted {
		t.Fatalf("Redeem() outcome = %v, want Accepted", res.Outcome)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	messages, err := fx.events.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	select {
	case msg := <-messages:
		if msg.Type != queue.TypeCheckIn {
			t.Fatalf("message type = %q, want %q", msg.Type, queue.TypeCheckIn)
		}
		var evt queue.CheckIn
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			t.Fatalf("unmarshal check-in: %v", err)
		}
		if evt.StudentID != "S1" || evt.Subject != "Math" {
			t.Fatalf("check-in payload wrong: %+v", evt)
		}
	case <-ctx.Done():
		t.Fatal("no check-in published for accepted redemption")
	}
}

func TestRedeemNilQueue(t *testing.T) {
	fx := newFixture()
	fx.protocol = NewProtocol(
		qrsession.NewManager(fx.sessions, fakeSubjects{"Math": true}, time.Minute),
		ledger.NewService(fx.rows, fakeStudents{"S1": "Alice"}),
		nil,
	)
	id := fx.sessions.seed("Math", time.Now().UTC())
	if res := fx.redeem(t, qrsession.TokenFor(id), "S1"); res.Outcome != Accepted {
		t.Fatalf("Redeem() outcome = %v, want Accepted", res.Outcome)
	}
}
