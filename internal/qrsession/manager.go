package qrsession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/QRollHQ/rollcall-backend/config"
	"github.com/QRollHQ/rollcall-backend/internal/token"
	models "github.com/QRollHQ/rollcall-backend/pkg/db"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

var (
	// ErrSessionNotFound means no live session with that id is known.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded means the session was stopped by the teacher.
	ErrSessionEnded = errors.New("session ended")
	// ErrAlreadyRunning means the classroom already has a running session.
	ErrAlreadyRunning = errors.New("classroom already has a running session")
	// ErrIntervalTooShort means the requested rotation interval is below the minimum.
	ErrIntervalTooShort = errors.New("rotation interval below minimum")
)

// Payload is the encodable content of the QR image. It carries the token
// value, its expiry and the identifiers a scanning client needs to route the
// validation call. No secret beyond the token value itself.
type Payload struct {
	SessionID   uint   `json:"sessionID"`
	ClassroomID uint   `json:"classroomID"`
	Token       string `json:"token"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Encode renders the payload as the string that goes into the QR image.
func (p Payload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Snapshot is the current state of a running session as shown to clients:
// the QR payload plus a live countdown.
type Snapshot struct {
	Payload          Payload `json:"payload"`
	SecondsRemaining int     `json:"secondsRemaining"`
}

// session is the in-memory state of one rotation run. The rotation goroutine
// is the sole writer of current; everything else only reads it.
type session struct {
	id          uint
	classroomID uint
	lectureName string
	interval    time.Duration
	codec       *token.Codec

	mu          sync.RWMutex
	current     token.Token
	endedAt     *time.Time
	subscribers map[chan Snapshot]struct{}

	cancel context.CancelFunc
}

// Manager owns all live QR sessions and their rotation timers. Stopped
// sessions stay resident (so late scans get a precise "ended" answer) until
// the janitor reaps them.
type Manager struct {
	cfg *config.Config
	db  *gorm.DB

	mu          sync.RWMutex
	byID        map[uint]*session
	byClassroom map[uint]*session // running sessions only

	now func() time.Time
}

func NewManager(cfg *config.Config, db *gorm.DB) *Manager {
	return &Manager{
		cfg:         cfg,
		db:          db,
		byID:        make(map[uint]*session),
		byClassroom: make(map[uint]*session),
		now:         time.Now,
	}
}

// Start begins a new rotation session for a classroom. An interval of 0
// means the configured default. A classroom can have at most one running
// session; a stopped session is never restarted, starting again creates a
// new one.
func (m *Manager) Start(ctx context.Context, classroomID uint, lectureName string, interval time.Duration) (Snapshot, error) {
	if interval == 0 {
		interval = m.cfg.QR.RotationInterval
	}
	if interval < config.MinRotationInterval {
		return Snapshot{}, ErrIntervalTooShort
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.byClassroom[classroomID]; running {
		return Snapshot{}, ErrAlreadyRunning
	}

	startedAt := m.now()
	row := models.ClassroomSession{
		ClassroomID:    classroomID,
		LectureName:    lectureName,
		StartedAt:      startedAt,
		RotationMillis: interval.Milliseconds(),
	}
	if err := gorm.G[models.ClassroomSession](m.db).Create(ctx, &row); err != nil {
		return Snapshot{}, err
	}

	codec := token.NewCodec(interval)
	sess := &session{
		id:          row.ID,
		classroomID: classroomID,
		lectureName: lectureName,
		interval:    interval,
		codec:       codec,
		current:     codec.Issue(startedAt),
		subscribers: make(map[chan Snapshot]struct{}),
	}

	rotationCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	go m.runRotation(rotationCtx, sess)

	m.byID[sess.id] = sess
	m.byClassroom[classroomID] = sess

	logger.Info("Started QR session", sess.id, "for classroom", classroomID)
	return sess.snapshot(m.now()), nil
}

// runRotation replaces the current token every interval until cancelled.
func (m *Manager) runRotation(ctx context.Context, sess *session) {
	ticker := time.NewTicker(sess.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.rotate(sess)
		}
	}
}

// rotate issues a fresh token and atomically replaces the current one. The
// prior token is discarded: there is no grace period.
func (m *Manager) rotate(sess *session) {
	now := m.now()
	fresh := sess.codec.Issue(now)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.endedAt != nil {
		return
	}
	sess.current = fresh
	snap := sess.snapshotLocked(now)

	// Fan out under sess.mu so a subscriber channel can never be closed
	// between the read of the map and the send. Sends are non-blocking.
	for ch := range sess.subscribers {
		select {
		case ch <- snap:
		default: // slow subscriber, skip this rotation
		}
	}
}

// Stop ends a session: the rotation timer is cancelled and endedAt is set in
// memory and on the persisted row. Idempotent; stopping twice is safe.
func (m *Manager) Stop(ctx context.Context, sessionID uint) error {
	m.mu.Lock()
	sess, exists := m.byID[sessionID]
	m.mu.Unlock()
	if !exists {
		return ErrSessionNotFound
	}

	now := m.now()
	sess.mu.Lock()
	if sess.endedAt != nil {
		sess.mu.Unlock()
		return nil // already stopped
	}
	sess.endedAt = &now
	sess.cancel()
	for ch := range sess.subscribers {
		close(ch)
		delete(sess.subscribers, ch)
	}
	sess.mu.Unlock()

	// Free the classroom slot only if this session still owns it. A newer
	// session may already be running for the classroom.
	m.mu.Lock()
	if m.byClassroom[sess.classroomID] == sess {
		delete(m.byClassroom, sess.classroomID)
	}
	m.mu.Unlock()

	if _, err := gorm.G[models.ClassroomSession](m.db).Where("id = ?", sessionID).Update(ctx, "ended_at", now); err != nil {
		logger.Err("Failed to persist session end:", err)
		return err
	}

	logger.Info("Stopped QR session", sessionID)
	return nil
}

// Snapshot returns the current payload and countdown for a running session.
func (m *Manager) Snapshot(sessionID uint) (Snapshot, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()
	if sess.endedAt != nil {
		return Snapshot{}, ErrSessionEnded
	}
	return sess.snapshotLocked(m.now()), nil
}

// ValidateScan checks a scanned token against the session's current token.
// A token that is well-formed but no longer current reports token.ErrExpired,
// since validation is only ever against the current token.
func (m *Manager) ValidateScan(sessionID uint, value string, expiresAt int64) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	now := m.now()
	scanned := token.Token{Value: value, ExpiresAt: expiresAt}

	sess.mu.RLock()
	defer sess.mu.RUnlock()

	if sess.endedAt != nil {
		return ErrSessionEnded
	}
	if err := sess.codec.Validate(scanned, now); err != nil {
		return err
	}
	if value != sess.current.Value {
		return token.ErrExpired
	}
	return sess.codec.Validate(sess.current, now)
}

// Subscribe registers a listener that receives a snapshot on every rotation.
// The returned cancel function must be called when the listener goes away;
// the channel is closed when the session stops.
func (m *Manager) Subscribe(sessionID uint) (<-chan Snapshot, func(), error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return nil, nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.endedAt != nil {
		return nil, nil, ErrSessionEnded
	}

	ch := make(chan Snapshot, 1)
	sess.subscribers[ch] = struct{}{}

	cancel := func() {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if _, ok := sess.subscribers[ch]; ok {
			delete(sess.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// RunningSession returns the id of the running session for a classroom, if
// any. Lets a reloaded teacher client re-attach instead of starting anew.
func (m *Manager) RunningSession(classroomID uint) (uint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.byClassroom[classroomID]
	if !ok {
		return 0, false
	}
	return sess.id, true
}

// SessionClassroom returns the classroom a resident session belongs to.
func (m *Manager) SessionClassroom(sessionID uint) (uint, error) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return 0, err
	}
	return sess.classroomID, nil
}

// Has reports whether the manager holds live state for a session id.
func (m *Manager) Has(sessionID uint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.byID[sessionID]
	return exists
}

// ReapEnded drops ended sessions that have been resident longer than the
// retention window. Called by the janitor.
func (m *Manager) ReapEnded(retention time.Duration) int {
	cutoff := m.now().Add(-retention)
	reaped := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.byID {
		sess.mu.RLock()
		ended := sess.endedAt
		sess.mu.RUnlock()
		if ended != nil && ended.Before(cutoff) {
			delete(m.byID, id)
			reaped++
		}
	}
	return reaped
}

// Shutdown stops every running session. Called when the process exits so no
// rotation timer leaks.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	ids := make([]uint, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil && err != ErrSessionNotFound {
			logger.Err("Failed to stop session", id, "during shutdown:", err)
		}
	}
}

func (m *Manager) lookup(sessionID uint) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, exists := m.byID[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *session) snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(now)
}

// snapshotLocked expects s.mu to be held (read or write).
func (s *session) snapshotLocked(now time.Time) Snapshot {
	remaining := s.current.ExpiresAt - now.UnixMilli()
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		Payload: Payload{
			SessionID:   s.id,
			ClassroomID: s.classroomID,
			Token:       s.current.Value,
			ExpiresAt:   s.current.ExpiresAt,
		},
		// Round up so a fresh token shows the full interval
		SecondsRemaining: int((remaining + 999) / 1000),
	}
}
