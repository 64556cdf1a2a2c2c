package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/QRollHQ/rollcall-backend/config"
	models "github.com/QRollHQ/rollcall-backend/pkg/db"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

func testHandler(t *testing.T) (http.Handler, *API, *gorm.DB) {
	t.Helper()

	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "test.db"))
	config.ForceReload()
	logger.Init()

	db, err := models.InitialiseDatabase(config.Get().Database.Path)
	if err != nil {
		t.Fatalf("failed to initialise test database: %v", err)
	}

	api := NewAPI(db)
	t.Cleanup(func() { api.Sessions().Shutdown(context.Background()) })

	return ApplyMiddleware(api.CreateMux()), api, db
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestAPI_WithMiddleware(t *testing.T) {
	handler, _, _ := testHandler(t)

	w := get(t, handler, "/v")

	// Check that the request went through middleware and reached the handler
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	// Check CORS headers are present (from CORSMiddleware)
	corsHeader := w.Header().Get("Access-Control-Allow-Origin")
	if corsHeader == "" {
		t.Error("expected CORS headers to be set by middleware")
	}
}

func TestAPI_UnknownRouteFallsBack(t *testing.T) {
	handler, _, _ := testHandler(t)

	if w := get(t, handler, "/no/such/route"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 from the fallback route, got %d", w.Code)
	}
}

// TestAPI_CheckInFlow drives the whole workflow over HTTP: create a
// classroom, join it, start a session, validate the scanned token and record
// attendance, then stop the session and observe recording is refused.
func TestAPI_CheckInFlow(t *testing.T) {
	handler, api, db := testHandler(t)
	ctx := t.Context()

	teacher := models.Teacher{Email: "teacher@example.com", Name: "Teacher"}
	if err := gorm.G[models.Teacher](db).Create(ctx, &teacher); err != nil {
		t.Fatalf("failed to seed teacher: %v", err)
	}
	student := models.Student{Email: "s1@example.com", Name: "S1"}
	if err := gorm.G[models.Student](db).Create(ctx, &student); err != nil {
		t.Fatalf("failed to seed student: %v", err)
	}

	// Create a classroom
	w := postJSON(t, handler, "/teacher/create-classroom", map[string]any{
		"teacher_id": teacher.ID,
		"name":       "Informatica 4B",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create-classroom: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	classroom, err := gorm.G[models.Classroom](db).Where("teacher_id = ?", teacher.ID).First(ctx)
	if err != nil {
		t.Fatalf("classroom row not created: %v", err)
	}

	// Classroom shows up in the teacher's class list
	if w := get(t, handler, fmt.Sprintf("/teacher/%d/classes", teacher.ID)); w.Code != http.StatusOK {
		t.Errorf("teacher classes: expected 200, got %d", w.Code)
	}

	// Student joins by code
	w = postJSON(t, handler, "/student/joinbycode", map[string]any{
		"student_id": student.ID,
		"join_code":  classroom.JoinCode,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("joinbycode: expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	// Joining again is reported, not duplicated
	w = postJSON(t, handler, "/student/joinbycode", map[string]any{
		"student_id": student.ID,
		"join_code":  classroom.JoinCode,
	})
	if w.Code != http.StatusOK {
		t.Errorf("repeat joinbycode: expected 200, got %d", w.Code)
	}

	// Start a session
	w = postJSON(t, handler, "/session/start", map[string]any{
		"classroom_id": classroom.ID,
		"lecture_name": "Lecture 1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("session/start: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	sessionID, ok := api.Sessions().RunningSession(classroom.ID)
	if !ok {
		t.Fatal("expected a running session for the classroom")
	}

	// A second start for the same classroom conflicts
	w = postJSON(t, handler, "/session/start", map[string]any{
		"classroom_id": classroom.ID,
		"lecture_name": "Lecture 1b",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("second session/start: expected 409, got %d", w.Code)
	}

	// An interval below the minimum is rejected up front
	w = postJSON(t, handler, "/session/start", map[string]any{
		"classroom_id": classroom.ID,
		"lecture_name": "Lecture 1c",
		"rotation_ms":  2000,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("short interval: expected 400, got %d", w.Code)
	}

	snapshot, err := api.Sessions().Snapshot(sessionID)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	// The QR image renders
	if w := get(t, handler, fmt.Sprintf("/session/qr?session_id=%d", sessionID)); w.Code != http.StatusOK {
		t.Errorf("session/qr: expected 200, got %d", w.Code)
	} else if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("session/qr: expected image/png, got %s", ct)
	}

	// Scan validation succeeds for the current token
	scanPath := fmt.Sprintf("/scan?session_id=%d&token=%s&expiresAt=%d", sessionID, snapshot.Payload.Token, snapshot.Payload.ExpiresAt)
	if w := get(t, handler, scanPath); w.Code != http.StatusOK {
		t.Errorf("scan: expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	// ...and fails for a stale token value
	stalePath := fmt.Sprintf("/scan?session_id=%d&token=stale&expiresAt=%d", sessionID, snapshot.Payload.ExpiresAt)
	if w := get(t, handler, stalePath); w.Code != http.StatusBadRequest {
		t.Errorf("stale scan: expected 400, got %d", w.Code)
	}

	// Full check-in with the dummy verifier
	image := base64.StdEncoding.EncodeToString([]byte("capture"))
	addBody := map[string]any{
		"session_id": sessionID,
		"student_id": student.ID,
		"token":      snapshot.Payload.Token,
		"expiresAt":  snapshot.Payload.ExpiresAt,
		"image":      image,
	}
	if w := postJSON(t, handler, "/attendance/add-student", addBody); w.Code != http.StatusCreated {
		t.Fatalf("add-student: expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	// Recording twice is a no-op success
	if w := postJSON(t, handler, "/attendance/add-student", addBody); w.Code != http.StatusOK {
		t.Errorf("repeat add-student: expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	// History lists the session with the student present
	if w := get(t, handler, fmt.Sprintf("/attendance/history?classroom_id=%d", classroom.ID)); w.Code != http.StatusOK {
		t.Errorf("history: expected 200, got %d", w.Code)
	}

	// Stop the session; stopping twice stays fine
	stopBody := map[string]any{"session_id": sessionID}
	if w := postJSON(t, handler, "/session/stop", stopBody); w.Code != http.StatusOK {
		t.Fatalf("session/stop: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if w := postJSON(t, handler, "/session/stop", stopBody); w.Code != http.StatusOK {
		t.Errorf("repeat session/stop: expected 200, got %d", w.Code)
	}

	// No attendance may be recorded after the teacher stopped the session
	if w := postJSON(t, handler, "/attendance/add-student", addBody); w.Code != http.StatusConflict {
		t.Errorf("add-student after stop: expected 409, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestAPI_ScanValidation(t *testing.T) {
	handler, _, _ := testHandler(t)

	// Missing parameters are rejected at the boundary
	if w := get(t, handler, "/scan"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bare scan, got %d", w.Code)
	}
	if w := get(t, handler, "/scan?session_id=1&token=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a scan without expiry, got %d", w.Code)
	}

	// Unknown session
	if w := get(t, handler, "/scan?session_id=42&token=abc&expiresAt=1000"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown session, got %d", w.Code)
	}
}
