package handlers

import (
	"errors"
	"net/http"

	"github.com/MonkyMars/gecho"

	"github.com/QRollHQ/rollcall-backend/internal/checkin"
	"github.com/QRollHQ/rollcall-backend/internal/ledger"
	"github.com/QRollHQ/rollcall-backend/internal/membership"
	"github.com/QRollHQ/rollcall-backend/internal/qrsession"
	"github.com/QRollHQ/rollcall-backend/internal/token"
	"github.com/QRollHQ/rollcall-backend/internal/verify"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

// sendDomainError translates the domain error taxonomy into HTTP responses.
// Unrecognised errors become a logged 500.
func sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrMalformed):
		gecho.BadRequest(w).WithMessage("Token is malformed").Send()
	case errors.Is(err, token.ErrExpired):
		gecho.BadRequest(w).WithMessage("Token has expired, re-scan the QR code").Send()
	case errors.Is(err, qrsession.ErrIntervalTooShort):
		gecho.BadRequest(w).WithMessage("Rotation interval must be at least 3000ms").Send()
	case errors.Is(err, qrsession.ErrSessionNotFound), errors.Is(err, ledger.ErrSessionNotFound):
		gecho.NotFound(w).WithMessage("Session not found").Send()
	case errors.Is(err, membership.ErrClassroomNotFound):
		gecho.NotFound(w).WithMessage("Classroom not found").Send()
	case errors.Is(err, membership.ErrStudentNotFound):
		gecho.NotFound(w).WithMessage("Student not found").Send()
	case errors.Is(err, qrsession.ErrSessionEnded), errors.Is(err, ledger.ErrSessionEnded):
		gecho.NewErr(w).WithStatus(http.StatusConflict).WithMessage("Session has ended").Send()
	case errors.Is(err, qrsession.ErrAlreadyRunning):
		gecho.NewErr(w).WithStatus(http.StatusConflict).WithMessage("Classroom already has a running session").Send()
	case errors.Is(err, ledger.ErrNotAMember):
		gecho.Forbidden(w).WithMessage("Student is not a member of this classroom").Send()
	case errors.Is(err, checkin.ErrVerificationFailed):
		gecho.Forbidden(w).WithMessage("Face verification failed").Send()
	case errors.Is(err, verify.ErrUpstream):
		gecho.NewErr(w).WithStatus(http.StatusBadGateway).WithMessage("Verification service unavailable, try again").Send()
	default:
		logger.Err(err)
		gecho.InternalServerError(w).Send()
	}
}
