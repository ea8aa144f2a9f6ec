// Package redemption turns a scanned token plus a claimed student id into
// exactly one attendance outcome.
package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"smartattend/internal/identity"
	"smartattend/internal/ledger"
	"smartattend/internal/qrsession"
	"smartattend/internal/queue"
)

// Outcome is the terminal result of one redemption attempt.
type Outcome string

const (
	Accepted            Outcome = "accepted"
	InvalidToken        Outcome = "invalid_token"
	TokenExpired        Outcome = "token_expired"
	UnknownStudent      Outcome = "unknown_student"
	DuplicateAttendance Outcome = "duplicate_attendance"
)

// Message renders an outcome as the user-facing text shown to the scanner.
func (o Outcome) Message() string {
	switch o {
	case Accepted:
		return "Attendance marked successfully"
	case InvalidToken:
		return "Unknown or malformed token"
	case TokenExpired:
		return "This QR code has expired"
	case UnknownStudent:
		return "Student is not registered"
	case DuplicateAttendance:
		return "Attendance already marked for today"
	}
	return string(o)
}

// Result carries the outcome and, when accepted, the written record.
type Result struct {
	Outcome Outcome       `json:"outcome"`
	Record  ledger.Record `json:"record,omitempty"`
}

type sessions interface {
	CheckAndExpire(ctx context.Context, id int64) (qrsession.Check, error)
}

type recorder interface {
	Record(ctx context.Context, studentID, subject string, at time.Time) (ledger.Result, ledger.Record, error)
}

// Protocol orchestrates a redemption attempt against the session manager and
// the ledger. It owns neither store; the subject written to the ledger always
// comes from the minted session, never from the caller.
type Protocol struct {
	sessions sessions
	recorder recorder
	events   queue.Queue
	now      func() time.Time
}

// NewProtocol wires the protocol. The queue may be nil; accepted check-ins
// are then simply not announced.
func NewProtocol(s sessions, rec recorder, events queue.Queue) *Protocol {
	return &Protocol{sessions: s, recorder: rec, events: events, now: time.Now}
}

// Redeem runs the decision list for one attempt: token lookup, expiry check,
// student resolution, atomic record. The first failing step ends the attempt;
// only Accepted writes an attendance row, and only the expiry check in step
// two has any other durable effect (the idempotent is_active flip).
func (p *Protocol) Redeem(ctx context.Context, token, studentID string) (Result, error) {
	id, err := qrsession.ParseToken(token)
	if err != nil {
		return Result{Outcome: InvalidToken}, nil
	}

	check, err := p.sessions.CheckAndExpire(ctx, id)
	if err != nil {
		return Result{}, err
	}
	switch check.Status {
	case qrsession.CheckNotFound:
		return Result{Outcome: InvalidToken}, nil
	case qrsession.CheckExpired:
		return Result{Outcome: TokenExpired}, nil
	}

	res, rec, err := p.recorder.Record(ctx, studentID, check.Subject, p.now())
	if err != nil {
		if errors.Is(err, identity.ErrStudentNotFound) {
			return Result{Outcome: UnknownStudent}, nil
		}
		return Result{}, err
	}
	if res == ledger.AlreadyRecorded {
		return Result{Outcome: DuplicateAttendance}, nil
	}

	p.announce(ctx, rec)
	return Result{Outcome: Accepted, Record: rec}, nil
}

// announce publishes the accepted check-in for the worker. Best effort only;
// a queue failure never changes the outcome.
func (p *Protocol) announce(ctx context.Context, rec ledger.Record) {
	if p.events == nil {
		return
	}
	body, err := json.Marshal(queue.CheckIn{
		StudentID: rec.StudentID,
		Subject:   rec.Subject,
		Date:      rec.Date.Format("2006-01-02"),
	})
	if err != nil {
		return
	}
	if err := p.events.Publish(ctx, queue.Message{Type: queue.TypeCheckIn, Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}
