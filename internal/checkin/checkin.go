package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/QRollHQ/rollcall-backend/internal/ledger"
	"github.com/QRollHQ/rollcall-backend/internal/membership"
	"github.com/QRollHQ/rollcall-backend/internal/qrsession"
	"github.com/QRollHQ/rollcall-backend/internal/verify"
)

// ErrVerificationFailed means the face-verification service answered, but
// did not recognise the student.
var ErrVerificationFailed = errors.New("face verification failed")

// Request is everything a scanning client submits for one check-in attempt:
// the fields it read from the QR payload plus its own identity capture. The
// classroom is never taken from the client; it is derived from the session.
type Request struct {
	SessionID uint
	StudentID uint
	Token     string
	ExpiresAt int64
	Image     []byte
}

// Outcome reports how far the flow got. NeedsJoin means everything up to the
// membership gate passed and the client should offer the join sub-flow for
// ClassroomID, then retry the recording step.
type Outcome struct {
	Recorded       bool   `json:"recorded"`
	AlreadyPresent bool   `json:"alreadyPresent"`
	NeedsJoin      bool   `json:"needsJoin"`
	ClassroomID    uint   `json:"classroomID,omitempty"`
	StudentName    string `json:"studentName,omitempty"`
}

// Orchestrator runs the end-to-end scan flow: token validity, external
// identity verification, membership gate, ledger update. Steps are
// independently retryable; nothing spans the flow transactionally, so a
// verified-but-unrecorded student just retries the recording step.
type Orchestrator struct {
	sessions *qrsession.Manager
	verifier verify.Verifier
	members  *membership.Service
	ledger   *ledger.Ledger

	now func() time.Time
}

func NewOrchestrator(sessions *qrsession.Manager, verifier verify.Verifier, members *membership.Service, attendance *ledger.Ledger) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		verifier: verifier,
		members:  members,
		ledger:   attendance,
		now:      time.Now,
	}
}

// CheckIn runs one scan through the whole flow.
func (o *Orchestrator) CheckIn(ctx context.Context, req Request) (Outcome, error) {
	// Step 1: the scanned token must be the session's current one
	if err := o.sessions.ValidateScan(req.SessionID, req.Token, req.ExpiresAt); err != nil {
		return Outcome{}, err
	}

	// Step 2: external identity verification, timeout-bounded by the provider
	result, err := o.verifier.Verify(ctx, req.StudentID, req.Image)
	if err != nil {
		return Outcome{}, err
	}
	if !result.Verified {
		return Outcome{}, ErrVerificationFailed
	}

	// Step 3: membership gates recording, but a missing membership is a join
	// affordance rather than a terminal failure
	classroomID, err := o.sessions.SessionClassroom(req.SessionID)
	if err != nil {
		return Outcome{}, err
	}
	member, err := o.members.IsMember(ctx, classroomID, req.StudentID)
	if err != nil {
		return Outcome{}, err
	}
	if !member {
		return Outcome{NeedsJoin: true, ClassroomID: classroomID, StudentName: result.Name}, nil
	}

	// Step 4: idempotent ledger update
	alreadyPresent, err := o.ledger.RecordPresence(ctx, req.SessionID, req.StudentID, o.now())
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Recorded:       true,
		AlreadyPresent: alreadyPresent,
		StudentName:    result.Name,
	}, nil
}
