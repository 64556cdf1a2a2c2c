package db

import (
	"time"

	"gorm.io/gorm"
)

type Teacher struct {
	gorm.Model
	Email string `gorm:"unique"`
	Name  string
}

type Student struct {
	gorm.Model
	Email string `gorm:"unique"`
	Name  string
}

type Classroom struct {
	gorm.Model
	Name      string
	TeacherID uint
	Teacher   Teacher `gorm:"foreignKey:TeacherID;references:ID"`
	// Short code students use to join, unique across classrooms
	JoinCode string `gorm:"unique"`
}

// ClassroomMembership relates a student to a classroom. The composite unique
// index gives the relation set semantics: a second join is a conflict, not a
// duplicate row.
type ClassroomMembership struct {
	gorm.Model
	ClassroomID uint      `gorm:"uniqueIndex:idx_classroom_student"`
	Classroom   Classroom `gorm:"foreignKey:ClassroomID;references:ID"`
	StudentID   uint      `gorm:"uniqueIndex:idx_classroom_student"`
	Student     Student   `gorm:"foreignKey:StudentID;references:ID"`
}

// ClassroomSession is one teacher-started QR rotation run. The rotating
// current token lives in memory with the session manager; only lifecycle
// facts are persisted.
type ClassroomSession struct {
	gorm.Model
	ClassroomID uint
	Classroom   Classroom `gorm:"foreignKey:ClassroomID;references:ID"`
	LectureName string
	StartedAt   time.Time
	EndedAt     *time.Time
	// Rotation interval in milliseconds, kept for the history view
	RotationMillis int64
}

// AttendanceEntry marks one student present in one session. The composite
// unique index makes presence recording idempotent at the database level;
// RecordedAt is the timestamp of the first successful addition.
type AttendanceEntry struct {
	gorm.Model
	SessionID  uint             `gorm:"uniqueIndex:idx_session_student"`
	Session    ClassroomSession `gorm:"foreignKey:SessionID;references:ID"`
	StudentID  uint             `gorm:"uniqueIndex:idx_session_student"`
	Student    Student          `gorm:"foreignKey:StudentID;references:ID"`
	RecordedAt time.Time
}
