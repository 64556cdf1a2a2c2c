package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MonkyMars/gecho"

	"github.com/QRollHQ/rollcall-backend/config"
	"github.com/QRollHQ/rollcall-backend/internal/checkin"
	"github.com/QRollHQ/rollcall-backend/internal/ledger"
	"github.com/QRollHQ/rollcall-backend/internal/qrsession"
)

// AttendanceHandler handles the scan validation, check-in and history routes
type AttendanceHandler struct {
	config       *config.Config
	sessions     *qrsession.Manager
	orchestrator *checkin.Orchestrator
	ledger       *ledger.Ledger
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(cfg *config.Config, sessions *qrsession.Manager, orchestrator *checkin.Orchestrator, attendance *ledger.Ledger) *AttendanceHandler {
	return &AttendanceHandler{
		config:       cfg,
		sessions:     sessions,
		orchestrator: orchestrator,
		ledger:       attendance,
	}
}

// handles GET /scan requests: the token-validity step of the flow. On any
// failure the client must re-scan; the reason comes back in the message.
func (h *AttendanceHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodGet); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}

	query := r.URL.Query()
	sessionID, ok := sessionIDFromQuery(r)
	if !ok {
		gecho.BadRequest(w).WithMessage("Missing or invalid 'session_id' query parameter").Send()
		return
	}
	tokenValue := query.Get("token")
	if tokenValue == "" {
		gecho.BadRequest(w).WithMessage("Missing 'token' query parameter").Send()
		return
	}
	expiresAt, err := strconv.ParseInt(query.Get("expiresAt"), 10, 64)
	if err != nil {
		gecho.BadRequest(w).WithMessage("Missing or invalid 'expiresAt' query parameter").Send()
		return
	}

	if err := h.sessions.ValidateScan(sessionID, tokenValue, expiresAt); err != nil {
		sendDomainError(w, err)
		return
	}

	gecho.Success(w).WithData(map[string]any{"valid": true}).Send()
}

// The classroom is deliberately not part of the body: the server derives it
// from the session, so a client cannot aim the membership gate elsewhere.
type AddStudentBody struct {
	SessionID *uint   `json:"session_id"`
	StudentID *uint   `json:"student_id"`
	Token     *string `json:"token"`
	ExpiresAt *int64  `json:"expiresAt"`
	Image     *string `json:"image"` // base64-encoded face capture
}

// handles POST /attendance/add-student requests: the full check-in flow
func (h *AttendanceHandler) PostAddStudent(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodPost); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}

	var body AddStudentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gecho.BadRequest(w).WithMessage(err.Error()).Send()
		return
	}
	for field, missing := range map[string]bool{
		"session_id": body.SessionID == nil,
		"student_id": body.StudentID == nil,
		"token":      body.Token == nil,
		"expiresAt":  body.ExpiresAt == nil,
		"image":      body.Image == nil,
	} {
		if missing {
			gecho.BadRequest(w).WithMessage("Missing field '" + field + "'").Send()
			return
		}
	}
	image, err := base64.StdEncoding.DecodeString(*body.Image)
	if err != nil {
		gecho.BadRequest(w).WithMessage("Field 'image' is not valid base64").Send()
		return
	}

	outcome, err := h.orchestrator.CheckIn(r.Context(), checkin.Request{
		SessionID: *body.SessionID,
		StudentID: *body.StudentID,
		Token:     *body.Token,
		ExpiresAt: *body.ExpiresAt,
		Image:     image,
	})
	if err != nil {
		sendDomainError(w, err)
		return
	}

	if outcome.Recorded && !outcome.AlreadyPresent {
		gecho.Created(w).WithData(outcome).Send()
		return
	}
	gecho.Success(w).WithData(outcome).Send()
}

// handles GET /attendance/history requests with cursor pagination
func (h *AttendanceHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodGet); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}

	query := r.URL.Query()
	classroomID, err := strconv.ParseUint(query.Get("classroom_id"), 10, 0)
	if err != nil {
		gecho.BadRequest(w).WithMessage("Missing or invalid 'classroom_id' query parameter").Send()
		return
	}

	var cursor uint64
	if cursorStr := query.Get("cursor"); cursorStr != "" {
		cursor, err = strconv.ParseUint(cursorStr, 10, 0)
		if err != nil {
			gecho.BadRequest(w).WithMessage("Invalid 'cursor' query parameter").Send()
			return
		}
	}
	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			gecho.BadRequest(w).WithMessage("Invalid 'limit' query parameter").Send()
			return
		}
	}

	records, nextCursor, err := h.ledger.History(r.Context(), uint(classroomID), uint(cursor), limit)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	gecho.Success(w).WithData(map[string]any{
		"records":     records,
		"next_cursor": nextCursor,
	}).Send()
}
