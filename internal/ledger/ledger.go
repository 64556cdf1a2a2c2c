package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/QRollHQ/rollcall-backend/internal/membership"
	models "github.com/QRollHQ/rollcall-backend/pkg/db"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

var (
	// ErrSessionNotFound means the session id is unknown.
	ErrSessionNotFound = errors.New("attendance session not found")
	// ErrSessionEnded means the teacher has stopped the session.
	ErrSessionEnded = errors.New("attendance session has ended")
	// ErrNotAMember means the student does not belong to the session's classroom.
	ErrNotAMember = errors.New("student is not a member of the classroom")
)

// Ledger maintains the set of students recorded present per session.
// Entries are only ever added, never removed.
type Ledger struct {
	db      *gorm.DB
	members *membership.Service
}

func NewLedger(db *gorm.DB, members *membership.Service) *Ledger {
	return &Ledger{db: db, members: members}
}

// RecordPresence adds a student to the present-set of a session. Adding an
// already-present student is a no-op that reports alreadyPresent=true and
// keeps the original timestamp. Two students (or the same student twice)
// racing within one rotation tick cannot duplicate entries: the insert is
// conditional on the (session, student) unique index.
func (l *Ledger) RecordPresence(ctx context.Context, sessionID, studentID uint, at time.Time) (alreadyPresent bool, err error) {
	session, err := gorm.G[models.ClassroomSession](l.db).Where("id = ?", sessionID).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrSessionNotFound
		}
		return false, err
	}
	if session.EndedAt != nil {
		return false, ErrSessionEnded
	}

	member, err := l.members.IsMember(ctx, session.ClassroomID, studentID)
	if err != nil {
		return false, err
	}
	if !member {
		return false, ErrNotAMember
	}

	entry := models.AttendanceEntry{
		SessionID:  sessionID,
		StudentID:  studentID,
		RecordedAt: at,
	}
	result := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return true, nil
	}

	logger.Info("Recorded student", studentID, "present in session", sessionID)
	return false, nil
}

// PresentStudent is one member of a session's present-set.
type PresentStudent struct {
	StudentID  uint      `json:"studentID"`
	Name       string    `json:"name"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Record is the attendance outcome of one past session.
type Record struct {
	SessionID   uint             `json:"sessionID"`
	ClassroomID uint             `json:"classroomID"`
	LectureName string           `json:"lectureName"`
	StartedAt   time.Time        `json:"startedAt"`
	EndedAt     *time.Time       `json:"endedAt,omitempty"`
	Present     []PresentStudent `json:"present"`
}

// History returns a classroom's attendance records, most recent session
// first. Pagination is by session id cursor: pass 0 for the first page and
// the returned nextCursor for subsequent ones. nextCursor is 0 when the
// listing is exhausted.
func (l *Ledger) History(ctx context.Context, classroomID uint, cursor uint, limit int) ([]Record, uint, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}

	query := l.db.WithContext(ctx).
		Model(&models.ClassroomSession{}).
		Where("classroom_id = ?", classroomID)
	if cursor != 0 {
		query = query.Where("id < ?", cursor)
	}

	var sessions []models.ClassroomSession
	if err := query.Order("id DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, 0, err
	}

	records := make([]Record, 0, len(sessions))
	for _, session := range sessions {
		var entries []models.AttendanceEntry
		err := l.db.WithContext(ctx).
			Where("session_id = ?", session.ID).
			Order("recorded_at ASC").
			Preload("Student").
			Find(&entries).Error
		if err != nil {
			return nil, 0, err
		}

		present := make([]PresentStudent, 0, len(entries))
		for _, entry := range entries {
			present = append(present, PresentStudent{
				StudentID:  entry.StudentID,
				Name:       entry.Student.Name,
				RecordedAt: entry.RecordedAt,
			})
		}
		records = append(records, Record{
			SessionID:   session.ID,
			ClassroomID: session.ClassroomID,
			LectureName: session.LectureName,
			StartedAt:   session.StartedAt,
			EndedAt:     session.EndedAt,
			Present:     present,
		})
	}

	var nextCursor uint
	if len(sessions) == limit {
		nextCursor = sessions[len(sessions)-1].ID
	}
	return records, nextCursor, nil
}
