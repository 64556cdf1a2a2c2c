package qrsession

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/QRollHQ/rollcall-backend/config"
	"github.com/QRollHQ/rollcall-backend/internal/token"
	models "github.com/QRollHQ/rollcall-backend/pkg/db"
)

func testManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()

	database, err := models.InitialiseDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to initialise test database: %v", err)
	}

	cfg := &config.Config{}
	cfg.QR.RotationInterval = 5 * time.Second

	return NewManager(cfg, database), database
}

func TestStart_RejectsShortInterval(t *testing.T) {
	manager, _ := testManager(t)

	_, err := manager.Start(context.Background(), 1, "Lecture 1", 2*time.Second)
	if !errors.Is(err, ErrIntervalTooShort) {
		t.Errorf("expected ErrIntervalTooShort for a 2s interval, got %v", err)
	}
}

func TestStart_OneRunningSessionPerClassroom(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	snap, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	defer manager.Stop(ctx, snap.Payload.SessionID)

	if _, err := manager.Start(ctx, 1, "Lecture 2", 0); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	// A different classroom is unaffected
	other, err := manager.Start(ctx, 2, "Lecture 1", 0)
	if err != nil {
		t.Errorf("start for another classroom failed: %v", err)
	}
	manager.Stop(ctx, other.Payload.SessionID)
}

func TestStart_DefaultIntervalFromConfig(t *testing.T) {
	manager, database := testManager(t)
	ctx := context.Background()

	fixed := time.UnixMilli(1_000_000)
	manager.now = func() time.Time { return fixed }

	snap, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if got := snap.Payload.ExpiresAt - fixed.UnixMilli(); got != 5000 {
		t.Errorf("expected the default 5000ms interval, got %d", got)
	}
	if snap.SecondsRemaining != 5 {
		t.Errorf("expected 5 seconds remaining on a fresh token, got %d", snap.SecondsRemaining)
	}

	row, err := gorm.G[models.ClassroomSession](database).Where("id = ?", snap.Payload.SessionID).First(ctx)
	if err != nil {
		t.Fatalf("session row not persisted: %v", err)
	}
	if row.RotationMillis != 5000 {
		t.Errorf("expected persisted rotation of 5000ms, got %d", row.RotationMillis)
	}
	if row.EndedAt != nil {
		t.Error("expected a running session to have no ended_at")
	}
}

func TestRotate_ReplacesCurrentToken(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	fixed := time.UnixMilli(1_000_000)
	manager.now = func() time.Time { return fixed }

	snap, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sessionID := snap.Payload.SessionID

	if err := manager.ValidateScan(sessionID, snap.Payload.Token, snap.Payload.ExpiresAt); err != nil {
		t.Errorf("current token should validate, got %v", err)
	}

	sess, err := manager.lookup(sessionID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	manager.rotate(sess)

	// The replaced token always reads as expired, never as current
	if err := manager.ValidateScan(sessionID, snap.Payload.Token, snap.Payload.ExpiresAt); !errors.Is(err, token.ErrExpired) {
		t.Errorf("expected ErrExpired for a replaced token, got %v", err)
	}

	fresh, err := manager.Snapshot(sessionID)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if fresh.Payload.Token == snap.Payload.Token {
		t.Error("expected rotation to produce a new token value")
	}
	if err := manager.ValidateScan(sessionID, fresh.Payload.Token, fresh.Payload.ExpiresAt); err != nil {
		t.Errorf("fresh token should validate, got %v", err)
	}
}

func TestValidateScan_ExpiryBoundary(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	start := time.UnixMilli(0)
	now := start
	manager.now = func() time.Time { return now }

	snap, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sessionID := snap.Payload.SessionID

	// Issued at t=0 with a 5000ms interval
	now = time.UnixMilli(4999)
	if err := manager.ValidateScan(sessionID, snap.Payload.Token, snap.Payload.ExpiresAt); err != nil {
		t.Errorf("expected valid at t=4999, got %v", err)
	}

	now = time.UnixMilli(5001)
	if err := manager.ValidateScan(sessionID, snap.Payload.Token, snap.Payload.ExpiresAt); !errors.Is(err, token.ErrExpired) {
		t.Errorf("expected ErrExpired at t=5001, got %v", err)
	}
}

func TestValidateScan_Malformed(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	snap, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer manager.Stop(ctx, snap.Payload.SessionID)

	if err := manager.ValidateScan(snap.Payload.SessionID, "", snap.Payload.ExpiresAt); !errors.Is(err, token.ErrMalformed) {
		t.Errorf("expected ErrMalformed for a missing value, got %v", err)
	}
	if err := manager.ValidateScan(snap.Payload.SessionID, snap.Payload.Token, 0); !errors.Is(err, token.ErrMalformed) {
		t.Errorf("expected ErrMalformed for a missing expiry, got %v", err)
	}
}

func TestValidateScan_UnknownSession(t *testing.T) {
	manager, _ := testManager(t)

	if err := manager.ValidateScan(42, "whatever", 5000); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStop_IsIdempotentAndFinal(t *testing.T) {
	manager, database := testManager(t)
	ctx := context.Background()

	snap, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sessionID := snap.Payload.SessionID

	if err := manager.Stop(ctx, sessionID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := manager.Stop(ctx, sessionID); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}

	// No token is accepted after stop, current or otherwise
	if err := manager.ValidateScan(sessionID, snap.Payload.Token, snap.Payload.ExpiresAt); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("expected ErrSessionEnded after stop, got %v", err)
	}
	if _, err := manager.Snapshot(sessionID); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("expected ErrSessionEnded from snapshot after stop, got %v", err)
	}

	row, err := gorm.G[models.ClassroomSession](database).Where("id = ?", sessionID).First(ctx)
	if err != nil {
		t.Fatalf("failed to load session row: %v", err)
	}
	if row.EndedAt == nil {
		t.Error("expected ended_at to be persisted")
	}

	// The classroom is free for a brand new session
	fresh, err := manager.Start(ctx, 1, "Lecture 2", 0)
	if err != nil {
		t.Fatalf("restarting the classroom should create a new session: %v", err)
	}
	if fresh.Payload.SessionID == sessionID {
		t.Error("expected a new session id after restart")
	}
}

func TestStop_StaleStopKeepsSuccessorRunning(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	old, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := manager.Stop(ctx, old.Payload.SessionID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	successor, err := manager.Start(ctx, 1, "Lecture 2", 0)
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	// Re-stopping the old session must not free the classroom slot now
	// owned by its successor.
	if err := manager.Stop(ctx, old.Payload.SessionID); err != nil {
		t.Fatalf("repeated stop of the old session failed: %v", err)
	}

	if _, err := manager.Start(ctx, 1, "Lecture 3", 0); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning while the successor runs, got %v", err)
	}
	id, ok := manager.RunningSession(1)
	if !ok || id != successor.Payload.SessionID {
		t.Errorf("expected the successor %d to still be running, got %d (ok=%v)",
			successor.Payload.SessionID, id, ok)
	}
}

func TestRotate_ConcurrentSubscribeAndStop(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	snap, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sessionID := snap.Payload.SessionID
	sess, err := manager.lookup(sessionID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	// Rotations racing subscriber churn and a final stop must never send
	// on a channel that the other side already closed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			manager.rotate(sess)
		}
	}()

	for i := 0; i < 500; i++ {
		updates, cancel, err := manager.Subscribe(sessionID)
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		select {
		case <-updates:
		default:
		}
		cancel()
	}
	if err := manager.Stop(ctx, sessionID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	<-done
}

func TestSubscribe_DeliversRotations(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	snap, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sessionID := snap.Payload.SessionID

	updates, cancel, err := manager.Subscribe(sessionID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	sess, _ := manager.lookup(sessionID)
	manager.rotate(sess)

	select {
	case got := <-updates:
		if got.Payload.Token == snap.Payload.Token {
			t.Error("expected the delivered snapshot to carry the rotated token")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot after rotation")
	}

	// Stop closes the subscription
	if err := manager.Stop(ctx, sessionID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case _, open := <-updates:
		if open {
			t.Error("expected the channel to be closed after stop")
		}
	case <-time.After(time.Second):
		t.Fatal("expected the channel to close after stop")
	}
}

func TestReapEnded(t *testing.T) {
	manager, _ := testManager(t)
	ctx := context.Background()

	snap, err := manager.Start(ctx, 1, "Lecture 1", 0)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := manager.Stop(ctx, snap.Payload.SessionID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if reaped := manager.ReapEnded(time.Hour); reaped != 0 {
		t.Errorf("expected a recently ended session to survive, reaped %d", reaped)
	}

	manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if reaped := manager.ReapEnded(time.Hour); reaped != 1 {
		t.Errorf("expected 1 session reaped, got %d", reaped)
	}
	if err := manager.ValidateScan(snap.Payload.SessionID, "x", 1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after reap, got %v", err)
	}
}
