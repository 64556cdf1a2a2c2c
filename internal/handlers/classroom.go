package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MonkyMars/gecho"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/QRollHQ/rollcall-backend/config"
	models "github.com/QRollHQ/rollcall-backend/pkg/db"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

// ClassroomHandler handles requests about classrooms
type ClassroomHandler struct {
	config *config.Config
	db     *gorm.DB
}

// NewClassroomHandler creates a new classroom handler
func NewClassroomHandler(cfg *config.Config, db *gorm.DB) *ClassroomHandler {
	return &ClassroomHandler{
		config: cfg,
		db:     db,
	}
}

type CreateClassroomBody struct {
	TeacherID *uint   `json:"teacher_id"`
	Name      *string `json:"name"`
}

// newJoinCode derives a short, shareable join code. A var so tests can force
// collisions.
var newJoinCode = func() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// joinCodeAttempts bounds the retries when a generated code is already taken.
const joinCodeAttempts = 3

// handles POST /teacher/create-classroom requests
func (h *ClassroomHandler) PostCreateClassroom(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodPost); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}
	ctx := r.Context()

	var body CreateClassroomBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gecho.BadRequest(w).WithMessage(err.Error()).Send()
		return
	}
	if body.TeacherID == nil {
		gecho.BadRequest(w).WithMessage("Missing field 'teacher_id'").Send()
		return
	}
	if body.Name == nil || strings.TrimSpace(*body.Name) == "" {
		gecho.BadRequest(w).WithMessage("Missing field 'name'").Send()
		return
	}

	if _, err := gorm.G[models.Teacher](h.db).Where("id = ?", *body.TeacherID).First(ctx); err != nil {
		if err == gorm.ErrRecordNotFound {
			gecho.NotFound(w).WithMessage("Teacher not found").Send()
			return
		}
		logger.Err(err)
		gecho.InternalServerError(w).Send()
		return
	}

	// Codes are random, so a collision just means generate again
	var classroom models.Classroom
	createErr := gorm.ErrDuplicatedKey
	for attempt := 0; attempt < joinCodeAttempts && errors.Is(createErr, gorm.ErrDuplicatedKey); attempt++ {
		classroom = models.Classroom{
			Name:      strings.TrimSpace(*body.Name),
			TeacherID: *body.TeacherID,
			JoinCode:  newJoinCode(),
		}
		createErr = gorm.G[models.Classroom](h.db).Create(ctx, &classroom)
	}
	if createErr != nil {
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			gecho.NewErr(w).WithStatus(http.StatusConflict).WithMessage("Could not allocate a unique join code, please retry").Send()
			return
		}
		logger.Err(createErr)
		gecho.InternalServerError(w).Send()
		return
	}

	classroomInfo := map[string]any{
		"id":         classroom.ID,
		"name":       classroom.Name,
		"teacher_id": classroom.TeacherID,
		"join_code":  classroom.JoinCode,
		"join_link":  fmt.Sprintf("/join/%s", classroom.JoinCode),
	}

	gecho.Created(w).WithData(classroomInfo).Send()
}

// handles GET /teacher/{id}/classes requests
func (h *ClassroomHandler) GetTeacherClasses(w http.ResponseWriter, r *http.Request) {
	if err := gecho.Handlers.HandleMethod(w, r, http.MethodGet); err != nil {
		err.Send() // Automatically sends 405 Method Not Allowed
		return
	}
	ctx := r.Context()

	teacherID, err := strconv.ParseUint(r.PathValue("id"), 10, 0)
	if err != nil {
		gecho.BadRequest(w).WithMessage(err.Error()).Send()
		return
	}

	if _, err := gorm.G[models.Teacher](h.db).Where("id = ?", teacherID).First(ctx); err != nil {
		if err == gorm.ErrRecordNotFound {
			gecho.NotFound(w).WithMessage("Teacher not found").Send()
			return
		}
		logger.Err(err)
		gecho.InternalServerError(w).Send()
		return
	}

	classrooms, err := gorm.G[models.Classroom](h.db).Where("teacher_id = ?", teacherID).Find(ctx)
	if err != nil {
		logger.Err(err)
		gecho.InternalServerError(w).Send()
		return
	}

	classroomInfoArray := []map[string]any{}
	for _, classroom := range classrooms {
		classroomInfoArray = append(classroomInfoArray, map[string]any{
			"id":        classroom.ID,
			"name":      classroom.Name,
			"join_code": classroom.JoinCode,
		})
	}

	gecho.Success(w).WithData(classroomInfoArray).Send()
}
