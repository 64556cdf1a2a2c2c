package api

import (
	"net/http"

	"github.com/MonkyMars/gecho"
	"gorm.io/gorm"

	"github.com/QRollHQ/rollcall-backend/config"
	"github.com/QRollHQ/rollcall-backend/internal/checkin"
	"github.com/QRollHQ/rollcall-backend/internal/handlers"
	"github.com/QRollHQ/rollcall-backend/internal/ledger"
	"github.com/QRollHQ/rollcall-backend/internal/membership"
	"github.com/QRollHQ/rollcall-backend/internal/middleware"
	"github.com/QRollHQ/rollcall-backend/internal/qrsession"
	"github.com/QRollHQ/rollcall-backend/internal/verify"
)

// API holds the API dependencies
type API struct {
	sessions *qrsession.Manager

	versionHandler    *handlers.VersionHandler
	classroomHandler  *handlers.ClassroomHandler
	studentHandler    *handlers.StudentHandler
	sessionHandler    *handlers.SessionHandler
	attendanceHandler *handlers.AttendanceHandler
	websocketHandler  *handlers.WebsocketHandler
}

// NewAPI creates a new API instance
func NewAPI(db *gorm.DB) *API {
	cfg := config.Get()

	sessions := qrsession.NewManager(cfg, db)
	members := membership.NewService(db)
	attendance := ledger.NewLedger(db, members)

	var verifier verify.Verifier
	switch cfg.Verify.Provider {
	case "http":
		verifier = verify.NewHTTPVerifier(cfg.Verify.BaseURL, cfg.Verify.Timeout)
	default:
		verifier = verify.NewDummyVerifier(db)
	}
	orchestrator := checkin.NewOrchestrator(sessions, verifier, members, attendance)

	return &API{
		sessions:          sessions,
		versionHandler:    handlers.NewVersionHandler(cfg),
		classroomHandler:  handlers.NewClassroomHandler(cfg, db),
		studentHandler:    handlers.NewStudentHandler(cfg, db, members),
		sessionHandler:    handlers.NewSessionHandler(cfg, db, sessions),
		attendanceHandler: handlers.NewAttendanceHandler(cfg, sessions, orchestrator, attendance),
		websocketHandler:  handlers.NewWebsocketHandler(cfg, sessions),
	}
}

// Sessions exposes the session manager so the server can tear down rotation
// timers on shutdown and hand them to the janitor.
func (api *API) Sessions() *qrsession.Manager {
	return api.sessions
}

// CreateMux creates and configures the HTTP mux
func (api *API) CreateMux() *http.ServeMux {
	mux := http.NewServeMux()
	api.setupRoutes(mux)
	return mux
}

// setupRoutes configures all the routes.
func (api *API) setupRoutes(mux *http.ServeMux) {
	// Version route
	mux.HandleFunc("/v", api.versionHandler.GetVersion)

	// Teacher routes
	mux.HandleFunc("/teacher/create-classroom", api.classroomHandler.PostCreateClassroom)
	mux.HandleFunc("/teacher/{id}/classes", api.classroomHandler.GetTeacherClasses)

	// Student membership routes
	mux.HandleFunc("/student/joinbycode", api.studentHandler.PostJoinByCode)
	mux.HandleFunc("/join/{code}", api.studentHandler.GetJoinByLink)

	// QR session lifecycle
	mux.HandleFunc("/session/start", api.sessionHandler.PostStartSession)
	mux.HandleFunc("/session/stop", api.sessionHandler.PostStopSession)
	mux.HandleFunc("/session/snapshot", api.sessionHandler.GetSnapshot)
	mux.HandleFunc("/session/qr", api.sessionHandler.GetQRImage)

	// Scan and attendance
	mux.HandleFunc("/scan", api.attendanceHandler.GetScan)
	mux.HandleFunc("/attendance/add-student", api.attendanceHandler.PostAddStudent)
	mux.HandleFunc("/attendance/history", api.attendanceHandler.GetHistory)

	// Live rotation stream for the teacher dashboard
	mux.HandleFunc("/ws/session", api.websocketHandler.StreamSession)

	// fallback route - must be last because it matches all routes.
	mux.HandleFunc("/", fallBack)
}

// ApplyMiddleware applies middleware to a handler
func ApplyMiddleware(handler http.Handler) http.Handler {
	return middleware.LoggingMiddleware(
		middleware.CORSMiddleware(handler),
	)
}

func fallBack(w http.ResponseWriter, r *http.Request) {
	gecho.NotFound(w).Send()
}
