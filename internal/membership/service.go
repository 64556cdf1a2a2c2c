package membership

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "github.com/QRollHQ/rollcall-backend/pkg/db"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

var (
	// ErrClassroomNotFound means the classroom id or join code did not resolve.
	ErrClassroomNotFound = errors.New("classroom not found")
	// ErrStudentNotFound means the student id did not resolve.
	ErrStudentNotFound = errors.New("student not found")
)

// Service maintains which students belong to which classroom. Membership is
// append-only; there is no leave operation.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Join adds the (classroom, student) pair if absent. Returns alreadyJoined =
// true when the pair existed; joining twice never duplicates the relation.
func (s *Service) Join(ctx context.Context, classroomID, studentID uint) (alreadyJoined bool, err error) {
	if _, err := gorm.G[models.Classroom](s.db).Where("id = ?", classroomID).First(ctx); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrClassroomNotFound
		}
		return false, err
	}
	if _, err := gorm.G[models.Student](s.db).Where("id = ?", studentID).First(ctx); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrStudentNotFound
		}
		return false, err
	}

	// Insert-or-ignore on the composite unique index keeps this atomic when
	// two joins for the same pair race.
	row := models.ClassroomMembership{ClassroomID: classroomID, StudentID: studentID}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return true, nil
	}

	logger.Info("Student", studentID, "joined classroom", classroomID)
	return false, nil
}

// JoinByCode resolves a classroom join code and joins the student to it.
func (s *Service) JoinByCode(ctx context.Context, code string, studentID uint) (classroomID uint, alreadyJoined bool, err error) {
	classroom, err := gorm.G[models.Classroom](s.db).Where("join_code = ?", code).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, ErrClassroomNotFound
		}
		return 0, false, err
	}

	alreadyJoined, err = s.Join(ctx, classroom.ID, studentID)
	return classroom.ID, alreadyJoined, err
}

// IsMember reports whether the student belongs to the classroom.
func (s *Service) IsMember(ctx context.Context, classroomID, studentID uint) (bool, error) {
	count, err := gorm.G[models.ClassroomMembership](s.db).
		Where("classroom_id = ? AND student_id = ?", classroomID, studentID).
		Count(ctx, "*")
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
