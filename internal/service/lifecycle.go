package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/classmark/attendance-server/internal/database"
	apperrors "github.com/classmark/attendance-server/internal/errors"
	"github.com/classmark/attendance-server/internal/model"
	"github.com/classmark/attendance-server/internal/repository"
	"github.com/classmark/attendance-server/internal/store"
	"github.com/classmark/attendance-server/internal/token"
)

type OpenSessionParams struct {
	CourseID        string
	TeacherID       string
	DurationMinutes int
	// ClassIDs restricts which classes may scan in. Empty means every class
	// is eligible.
	ClassIDs []string
}

type CloseResult struct {
	SessionID     string `json:"sessionId"`
	AlreadyClosed bool   `json:"alreadyClosed"`
	Flushed       int    `json:"flushed"`
}

// TxRunner executes a function inside a durable-store transaction.
// *database.DB satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// LifecycleManager exclusively owns session state transitions. It keeps the
// durable record and the ephemeral marker consistent: the marker expires on
// its own, and the reconcile sweep brings the durable flag back in line.
type LifecycleManager struct {
	db               TxRunner
	sessionRepo      repository.SessionRepository
	attendanceRepo   repository.AttendanceRepository
	sessionClassRepo repository.SessionClassRepository
	minter           *token.Minter
	ephemeral        store.EphemeralStore
	defaultDuration  time.Duration
	now              func() time.Time
}

func NewLifecycleManager(
	db TxRunner,
	sessionRepo repository.SessionRepository,
	attendanceRepo repository.AttendanceRepository,
	sessionClassRepo repository.SessionClassRepository,
	minter *token.Minter,
	ephemeral store.EphemeralStore,
	defaultDuration time.Duration,
) *LifecycleManager {
	return &LifecycleManager{
		db:               db,
		sessionRepo:      sessionRepo,
		attendanceRepo:   attendanceRepo,
		sessionClassRepo: sessionClassRepo,
		minter:           minter,
		ephemeral:        ephemeral,
		defaultDuration:  defaultDuration,
		now:              time.Now,
	}
}

// SetClock replaces the manager's time source.
func (m *LifecycleManager) SetClock(now func() time.Time) {
	m.now = now
}

// Open creates an active durable session and mirrors it into the ephemeral
// store as a marker that expires with the session.
func (m *LifecycleManager) Open(ctx context.Context, params OpenSessionParams) (*model.Session, error) {
	duration := time.Duration(params.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = m.defaultDuration
	}

	start := m.now()
	var session *model.Session
	err := m.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := m.sessionRepo.WithTx(tx).Create(ctx, model.CreateSessionParams{
			CourseID:  params.CourseID,
			TeacherID: params.TeacherID,
			StartTime: start,
			EndTime:   start.Add(duration),
		})
		if err != nil {
			return err
		}
		classRepo := m.sessionClassRepo.WithTx(tx)
		for _, classID := range params.ClassIDs {
			if err := classRepo.Add(ctx, created.ID, classID); err != nil {
				return err
			}
		}
		session = created
		return nil
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if err := m.minter.IssueSessionWindow(ctx, session); err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("courseId", session.CourseID).
		Str("teacherId", session.TeacherID).
		Time("endTime", session.EndTime).
		Msg("session opened")

	return session, nil
}

// Extend advances an active session's end time and rewrites the ephemeral
// marker so its TTL covers the new remaining duration.
func (m *LifecycleManager) Extend(ctx context.Context, sessionID string, extraMinutes int) (*model.Session, error) {
	if extraMinutes <= 0 {
		return nil, apperrors.InvalidInput("extraMinutes", "must be positive")
	}

	session, err := m.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil || !session.Active {
		return nil, apperrors.SessionNotFoundOrInactive()
	}

	newEnd := session.EndTime.Add(time.Duration(extraMinutes) * time.Minute)
	extended, err := m.sessionRepo.ExtendEnd(ctx, sessionID, newEnd)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !extended {
		// Closed in between the read and the update.
		return nil, apperrors.SessionNotFoundOrInactive()
	}

	session.EndTime = newEnd
	if err := m.minter.IssueSessionWindow(ctx, session); err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", sessionID).
		Int("extraMinutes", extraMinutes).
		Time("newEnd", newEnd).
		Msg("session extended")

	return session, nil
}

// Close ends a session and flushes the live-attendance set into durable
// rows. Closing an already-closed session is a no-op reported as such.
func (m *LifecycleManager) Close(ctx context.Context, sessionID string) (*CloseResult, error) {
	session, err := m.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if !session.Active {
		return &CloseResult{SessionID: sessionID, AlreadyClosed: true}, nil
	}

	flushed, err := m.closeAndFlush(ctx, session)
	if err != nil {
		return nil, err
	}
	return &CloseResult{SessionID: sessionID, Flushed: flushed}, nil
}

// ReconcileExpired sweeps durable sessions whose end time has passed but are
// still flagged active, applying the same close-and-flush as Close. A failure
// on one session never aborts the rest.
func (m *LifecycleManager) ReconcileExpired(ctx context.Context) (int, error) {
	expired, err := m.sessionRepo.FindExpiredActive(ctx, m.now())
	if err != nil {
		return 0, apperrors.Database(err)
	}

	closed := 0
	for i := range expired {
		session := &expired[i]
		if _, err := m.closeAndFlush(ctx, session); err != nil {
			log.Error().Err(err).
				Str("sessionId", session.ID).
				Msg("failed to reconcile expired session")
			continue
		}
		closed++
	}
	if closed > 0 {
		log.Info().Int("count", closed).Msg("reconciled expired sessions")
	}
	return closed, nil
}

// IssueQR mints the next rotating token for an active session. Issuance is
// gated on the ephemeral marker alone: once it has expired the QR display
// should stop, even if the reconcile sweep has not caught up yet.
func (m *LifecycleManager) IssueQR(ctx context.Context, sessionID string) (*token.IssuedToken, error) {
	_, err := m.ephemeral.Get(ctx, store.ActiveSessionKey(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.SessionInactive()
	}
	if err != nil {
		return nil, apperrors.Cache(err)
	}
	return m.minter.IssueRotatingToken(ctx, sessionID)
}

// GetLiveAttendance returns the ids of students who have scanned into the
// session so far. An absent live set yields an empty slice.
func (m *LifecycleManager) GetLiveAttendance(ctx context.Context, sessionID string) ([]string, error) {
	students, err := m.ephemeral.SetMembers(ctx, store.LiveAttendanceKey(sessionID))
	if err != nil {
		return nil, apperrors.Cache(err)
	}
	if students == nil {
		students = []string{}
	}
	return students, nil
}

// closeAndFlush is the shared close sequence: read the live set, then in one
// durable transaction mark the session inactive and upsert an attendance row
// per scanned student, and finally drop both ephemeral keys. The two stores
// are not updated transactionally with each other; stale ephemeral keys after
// a crash are tolerated because readers trust the durable record.
func (m *LifecycleManager) closeAndFlush(ctx context.Context, session *model.Session) (int, error) {
	studentIDs, err := m.ephemeral.SetMembers(ctx, store.LiveAttendanceKey(session.ID))
	if err != nil {
		return 0, apperrors.Cache(err)
	}

	closedAt := m.now()
	err = m.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		closed, err := m.sessionRepo.WithTx(tx).SetInactive(ctx, session.ID, closedAt)
		if err != nil {
			return err
		}
		if !closed {
			// Lost a race with another close; nothing to flush here.
			return nil
		}
		attendanceRepo := m.attendanceRepo.WithTx(tx)
		for _, studentID := range studentIDs {
			if _, err := attendanceRepo.Upsert(ctx, model.MarkAttendanceParams{
				SessionID: session.ID,
				StudentID: studentID,
				MarkedAt:  closedAt,
			}); err != nil {
				return fmt.Errorf("flush attendance for student %s: %w", studentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.Database(err)
	}

	if err := m.ephemeral.Delete(ctx, store.ActiveSessionKey(session.ID)); err != nil {
		return 0, apperrors.Cache(err)
	}
	if err := m.ephemeral.Delete(ctx, store.LiveAttendanceKey(session.ID)); err != nil {
		return 0, apperrors.Cache(err)
	}

	log.Info().
		Str("sessionId", session.ID).
		Int("flushed", len(studentIDs)).
		Msg("session closed")

	return len(studentIDs), nil
}
