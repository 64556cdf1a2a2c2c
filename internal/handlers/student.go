package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MonkyMars/gecho"
	"gorm.io/gorm"

	"github.com/QRollHQ/rollcall-backend/config"
	"github.com/QRollHQ/rollcall-backend/internal/membership"
)

// StudentHandler handles requests students make about classroom membership
type StudentHandler struct {
	config  *config.Config
	db      *gorm.DB
	members *membership.Service
}

// NewStudentHandler creates a new student handler
func NewStudentHandler(cfg *config.Config, db *gorm.DB, members *membership.Service) *StudentHandler {
	return &StudentHandler{
		config:  cfg,
		db:      db,
		members: members,
	}
}

type JoinByCodeBody struct {
	StudentID *uint   `json:"student_id"`
	JoinCode  *string `json:"join_code"`
}

// handles POST /student/joinbycode requests
func (h *StudentHandler) PostJoinByCode(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodPost); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}
	ctx := r.Context()

	var body JoinByCodeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gecho.BadRequest(w).WithMessage(err.Error()).Send()
		return
	}
	if body.StudentID == nil {
		gecho.BadRequest(w).WithMessage("Missing field 'student_id'").Send()
		return
	}
	if body.JoinCode == nil || *body.JoinCode == "" {
		gecho.BadRequest(w).WithMessage("Missing field 'join_code'").Send()
		return
	}

	classroomID, alreadyJoined, err := h.members.JoinByCode(ctx, *body.JoinCode, *body.StudentID)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	joinInfo := map[string]any{
		"classroom_id":   classroomID,
		"student_id":     *body.StudentID,
		"already_joined": alreadyJoined,
	}
	if alreadyJoined {
		gecho.Success(w).WithData(joinInfo).Send()
		return
	}
	gecho.Created(w).WithData(joinInfo).Send()
}

// handles GET /join/{code} requests, the join-link variant of joining
func (h *StudentHandler) GetJoinByLink(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodGet); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}
	ctx := r.Context()

	code := r.PathValue("code")
	studentID, err := strconv.ParseUint(r.URL.Query().Get("student_id"), 10, 0)
	if err != nil {
		gecho.BadRequest(w).WithMessage("Missing or invalid 'student_id' query parameter").Send()
		return
	}

	classroomID, alreadyJoined, err := h.members.JoinByCode(ctx, code, uint(studentID))
	if err != nil {
		sendDomainError(w, err)
		return
	}

	gecho.Success(w).WithData(map[string]any{
		"classroom_id":   classroomID,
		"student_id":     studentID,
		"already_joined": alreadyJoined,
	}).Send()
}
