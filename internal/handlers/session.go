package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MonkyMars/gecho"
	"gorm.io/gorm"

	"github.com/QRollHQ/rollcall-backend/config"
	"github.com/QRollHQ/rollcall-backend/internal/qrsession"
	models "github.com/QRollHQ/rollcall-backend/pkg/db"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
	"github.com/QRollHQ/rollcall-backend/pkg/qr"
)

// SessionHandler handles the QR session lifecycle: start, stop, snapshot and
// the rendered QR image
type SessionHandler struct {
	config   *config.Config
	db       *gorm.DB
	sessions *qrsession.Manager
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(cfg *config.Config, db *gorm.DB, sessions *qrsession.Manager) *SessionHandler {
	return &SessionHandler{
		config:   cfg,
		db:       db,
		sessions: sessions,
	}
}

type StartSessionBody struct {
	ClassroomID    *uint   `json:"classroom_id"`
	LectureName    *string `json:"lecture_name"`
	RotationMillis *int64  `json:"rotation_ms"` // Optional, defaults from config
}

// handles POST /session/start requests
func (h *SessionHandler) PostStartSession(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodPost); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}
	ctx := r.Context()

	var body StartSessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gecho.BadRequest(w).WithMessage(err.Error()).Send()
		return
	}
	if body.ClassroomID == nil {
		gecho.BadRequest(w).WithMessage("Missing field 'classroom_id'").Send()
		return
	}
	if body.LectureName == nil || *body.LectureName == "" {
		gecho.BadRequest(w).WithMessage("Missing field 'lecture_name'").Send()
		return
	}

	if _, err := gorm.G[models.Classroom](h.db).Where("id = ?", *body.ClassroomID).First(ctx); err != nil {
		if err == gorm.ErrRecordNotFound {
			gecho.NotFound(w).WithMessage("Classroom not found").Send()
			return
		}
		logger.Err(err)
		gecho.InternalServerError(w).Send()
		return
	}

	var interval time.Duration
	if body.RotationMillis != nil {
		interval = time.Duration(*body.RotationMillis) * time.Millisecond
	}

	snapshot, err := h.sessions.Start(ctx, *body.ClassroomID, *body.LectureName, interval)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	gecho.Created(w).WithData(snapshot).Send()
}

type StopSessionBody struct {
	SessionID *uint `json:"session_id"`
}

// handles POST /session/stop requests; stopping twice is safe
func (h *SessionHandler) PostStopSession(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodPost); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}

	var body StopSessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gecho.BadRequest(w).WithMessage(err.Error()).Send()
		return
	}
	if body.SessionID == nil {
		gecho.BadRequest(w).WithMessage("Missing field 'session_id'").Send()
		return
	}

	if err := h.sessions.Stop(r.Context(), *body.SessionID); err != nil {
		sendDomainError(w, err)
		return
	}

	gecho.Success(w).WithData(map[string]any{"session_id": *body.SessionID, "stopped": true}).Send()
}

// sessionIDFromQuery reads the session_id query parameter
func sessionIDFromQuery(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.URL.Query().Get("session_id"), 10, 0)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// handles GET /session/snapshot requests. Clients re-fetch this after a
// reload instead of keeping their own rotation state.
func (h *SessionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodGet); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}

	sessionID, ok := sessionIDFromQuery(r)
	if !ok {
		gecho.BadRequest(w).WithMessage("Missing or invalid 'session_id' query parameter").Send()
		return
	}

	snapshot, err := h.sessions.Snapshot(sessionID)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	gecho.Success(w).WithData(snapshot).Send()
}

// handles GET /session/qr requests, returning the current payload as a PNG
func (h *SessionHandler) GetQRImage(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodGet); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}

	sessionID, ok := sessionIDFromQuery(r)
	if !ok {
		gecho.BadRequest(w).WithMessage("Missing or invalid 'session_id' query parameter").Send()
		return
	}

	snapshot, err := h.sessions.Snapshot(sessionID)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	payload, err := snapshot.Payload.Encode()
	if err != nil {
		logger.Err(err)
		gecho.InternalServerError(w).Send()
		return
	}
	image, err := qr.PNG(payload, h.config.QR.ImageSize)
	if err != nil {
		logger.Err(err)
		gecho.InternalServerError(w).Send()
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store") // stale QR images must never be reused
	w.WriteHeader(http.StatusOK)
	w.Write(image)
}
