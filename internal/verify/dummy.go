package verify

import (
	"context"

	"gorm.io/gorm"

	models "github.com/QRollHQ/rollcall-backend/pkg/db"
)

// DummyVerifier accepts any non-empty capture for a known student and
// answers with the student's registered name. Development stand-in for the
// real service; selected with VERIFY_PROVIDER=dummy.
type DummyVerifier struct {
	db *gorm.DB
}

var _ Verifier = (*DummyVerifier)(nil)

func NewDummyVerifier(db *gorm.DB) *DummyVerifier {
	return &DummyVerifier{db: db}
}

func (v *DummyVerifier) Verify(ctx context.Context, studentID uint, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{Verified: false, Message: "No face captured"}, nil
	}

	student, err := gorm.G[models.Student](v.db).Where("id = ?", studentID).First(ctx)
	if err == gorm.ErrRecordNotFound {
		return Result{Verified: false, Message: "Unknown student"}, nil
	}
	if err != nil {
		return Result{}, err
	}

	return Result{Verified: true, Name: student.Name}, nil
}
