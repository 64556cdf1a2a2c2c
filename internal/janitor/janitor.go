package janitor

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/QRollHQ/rollcall-backend/config"
	"github.com/QRollHQ/rollcall-backend/internal/qrsession"
	models "github.com/QRollHQ/rollcall-backend/pkg/db"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

type Janitor struct {
	cfg              *config.Config
	database         *gorm.DB
	sessions         *qrsession.Manager
	announceNoAction bool
	cancel           context.CancelFunc
}

func NewJanitor(cfg *config.Config, db *gorm.DB, sessions *qrsession.Manager, announceNoAction bool) *Janitor {
	return &Janitor{
		cfg:              cfg,
		database:         db,
		sessions:         sessions,
		announceNoAction: announceNoAction,
	}
}

func (jan *Janitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	jan.cancel = cancel

	go func() {
		shortTicker := time.NewTicker(jan.cfg.Janitor.ShortCleanInterval)
		defer shortTicker.Stop()
		fullTicker := time.NewTicker(jan.cfg.Janitor.FullCleanInterval)
		defer fullTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-shortTicker.C:
				jan.RunShort()
			case <-fullTicker.C:
				jan.RunFull()
			}
		}
	}()
}

func (jan *Janitor) Stop() {
	if jan.cancel != nil {
		jan.cancel()
		jan.cancel = nil
	}
}

func (jan *Janitor) RunShort() {
	logger.Info("Janitor: Running short cleaning sequence.")
	jan.ReapEndedSessions()
	jan.CloseOrphanedSessions()
}

func (jan *Janitor) RunFull() {
	logger.Info("Janitor: Running full cleaning sequence.")
	jan.RunShort()

	jan.DeepCleanDatabase(nil)
}

// ReapEndedSessions drops stopped sessions from the session manager once
// they have been resident past the retention window.
func (jan *Janitor) ReapEndedSessions() {
	if jan.sessions == nil {
		return
	}
	reaped := jan.sessions.ReapEnded(jan.cfg.Janitor.SessionRetention)
	if jan.announceNoAction || reaped != 0 {
		logger.Info(fmt.Sprintf("Janitor: reaped %d ended sessions from memory", reaped))
	}
}

// CloseOrphanedSessions marks persisted sessions as ended when no rotation
// timer exists for them anymore. Happens after an unclean restart: the DB
// row says running, but the in-memory session died with the old process.
func (jan *Janitor) CloseOrphanedSessions() {
	ctx := context.Background()

	open, err := gorm.G[models.ClassroomSession](jan.database).Where("ended_at IS NULL").Find(ctx)
	if err != nil {
		logger.Err("Janitor: failed to list open sessions:", err)
		return
	}

	closed := 0
	for _, session := range open {
		if jan.sessions != nil && jan.sessions.Has(session.ID) {
			continue
		}
		if _, err := gorm.G[models.ClassroomSession](jan.database).Where("id = ?", session.ID).Update(ctx, "ended_at", time.Now()); err != nil {
			logger.Err(fmt.Sprintf("Janitor: failed to close orphaned session %d: %s", session.ID, err.Error()))
			continue
		}
		closed++
	}
	if jan.announceNoAction || closed != 0 {
		logger.Info(fmt.Sprintf("Janitor: closed %d orphaned sessions", closed))
	}
}

// DeepCleanDatabase forces gorm to delete all "deleted" entries
func (jan *Janitor) DeepCleanDatabase(deepcleanModels *[]any) {
	if deepcleanModels == nil {
		deepcleanModels = &[]any{
			models.Teacher{},
			models.Student{},
			models.Classroom{},
			models.ClassroomMembership{},
			models.ClassroomSession{},
			models.AttendanceEntry{},
		}
	}
	for _, deepcleanModel := range *deepcleanModels {
		result := jan.database.Unscoped().Where("deleted_at IS NOT NULL").Delete(deepcleanModel)
		if result.Error != nil {
			logger.Err(fmt.Sprintf("Janitor: Error while deepcleaning model %T: %s", deepcleanModel, result.Error.Error()))
		} else {
			if jan.announceNoAction || result.RowsAffected != 0 {
				logger.Info(fmt.Sprintf("Janitor: Deleted %d rows from model %T", result.RowsAffected, deepcleanModel))
			}
		}
	}
}
