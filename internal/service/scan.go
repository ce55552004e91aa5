package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/classmark/attendance-server/internal/errors"
	"github.com/classmark/attendance-server/internal/model"
	"github.com/classmark/attendance-server/internal/repository"
	"github.com/classmark/attendance-server/internal/store"
	"github.com/classmark/attendance-server/internal/token"
)

// ScanState names a stage of scan validation. A scan advances through the
// states in order and can terminate with a rejection at any transition.
type ScanState string

const (
	StateReceived               ScanState = "RECEIVED"
	StateTokenVerified          ScanState = "TOKEN_VERIFIED"
	StateSessionActiveConfirmed ScanState = "SESSION_ACTIVE_CONFIRMED"
	StateWindowChecked          ScanState = "WINDOW_CHECKED"
	StateMembershipChecked      ScanState = "MEMBERSHIP_CHECKED"
	StateAccepted               ScanState = "ACCEPTED"
)

// Tolerances are the time-window knobs for scan validation. They are injected
// at construction so tests can pin tight or loose values deterministically.
type Tolerances struct {
	ClockSkew          time.Duration
	LateWindow         time.Duration
	MaxSubmissionDelay time.Duration
}

type ScanRequest struct {
	QRToken   string
	StudentID string
	// ScannedAt is the client-reported capture time in unix milliseconds.
	ScannedAt int64
}

type ScanResult struct {
	Accepted   bool                `json:"accepted"`
	ReasonCode apperrors.ErrorCode `json:"reasonCode,omitempty"`
	State      ScanState           `json:"state"`
	SessionID  string              `json:"sessionId,omitempty"`
	Details    any                 `json:"details,omitempty"`
}

// TokenVerifier checks a rotating token's signature and structure.
type TokenVerifier interface {
	Verify(token string) (*token.Claims, error)
}

type ScanValidator struct {
	verifier         TokenVerifier
	ephemeral        store.EphemeralStore
	sessionRepo      repository.SessionRepository
	attendanceRepo   repository.AttendanceRepository
	studentRepo      repository.StudentRepository
	sessionClassRepo repository.SessionClassRepository
	tolerances       Tolerances
	now              func() time.Time
}

func NewScanValidator(
	verifier TokenVerifier,
	ephemeral store.EphemeralStore,
	sessionRepo repository.SessionRepository,
	attendanceRepo repository.AttendanceRepository,
	studentRepo repository.StudentRepository,
	sessionClassRepo repository.SessionClassRepository,
	tolerances Tolerances,
) *ScanValidator {
	return &ScanValidator{
		verifier:         verifier,
		ephemeral:        ephemeral,
		sessionRepo:      sessionRepo,
		attendanceRepo:   attendanceRepo,
		studentRepo:      studentRepo,
		sessionClassRepo: sessionClassRepo,
		tolerances:       tolerances,
		now:              time.Now,
	}
}

// SetClock replaces the validator's time source.
func (v *ScanValidator) SetClock(now func() time.Time) {
	v.now = now
}

// Validate runs a scan attempt through the full state machine. Rejections are
// expected outcomes and come back inside the result; a non-nil error means a
// storage failure or an unresolvable input, not a rejection.
func (v *ScanValidator) Validate(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	// RECEIVED -> TOKEN_VERIFIED
	claims, err := v.verifier.Verify(req.QRToken)
	if err != nil {
		return reject(StateReceived, "", apperrors.GetCode(err), nil), nil
	}

	// -> SESSION_ACTIVE_CONFIRMED
	active, err := v.sessionActive(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !active {
		return reject(StateTokenVerified, claims.SessionID, apperrors.ErrCodeSessionInactive, nil), nil
	}

	// Nonce cross-check. Metadata may already have been evicted; absence
	// degrades gracefully to signature plus window checks alone.
	if mismatch, err := v.nonceMismatch(ctx, claims); err != nil {
		return nil, err
	} else if mismatch {
		return reject(StateSessionActiveConfirmed, claims.SessionID, apperrors.ErrCodeTokenSessionMismatch, nil), nil
	}

	// -> WINDOW_CHECKED. The window test uses the client-reported capture
	// time against the token's lifetime; the delay test bounds how stale the
	// submission is against server receipt time. The mixed basis is
	// deliberate: it validates when the device saw the QR, while
	// independently limiting network and submission latency.
	lowerBound := claims.IssuedAt - v.tolerances.ClockSkew.Milliseconds()
	upperBound := claims.ExpiresAt + v.tolerances.LateWindow.Milliseconds()
	if req.ScannedAt < lowerBound || req.ScannedAt > upperBound {
		return reject(StateSessionActiveConfirmed, claims.SessionID, apperrors.ErrCodeOutOfWindow, map[string]int64{
			"lowerBound": lowerBound,
			"upperBound": upperBound,
			"scannedAt":  req.ScannedAt,
		}), nil
	}
	if v.now().UnixMilli()-req.ScannedAt > v.tolerances.MaxSubmissionDelay.Milliseconds() {
		return reject(StateSessionActiveConfirmed, claims.SessionID, apperrors.ErrCodeSubmissionDelayed, nil), nil
	}

	// -> MEMBERSHIP_CHECKED
	eligible, err := v.classEligible(ctx, claims.SessionID, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return reject(StateWindowChecked, claims.SessionID, apperrors.ErrCodeClassNotEligible, nil), nil
	}

	// -> ACCEPTED
	created, err := v.attendanceRepo.Upsert(ctx, model.MarkAttendanceParams{
		SessionID: claims.SessionID,
		StudentID: req.StudentID,
		MarkedAt:  time.UnixMilli(req.ScannedAt),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if err := v.ephemeral.SetAdd(ctx, store.LiveAttendanceKey(claims.SessionID), req.StudentID); err != nil {
		return nil, apperrors.Cache(err)
	}

	if created {
		log.Info().
			Str("sessionId", claims.SessionID).
			Str("studentId", req.StudentID).
			Msg("attendance marked")
	} else {
		log.Debug().
			Str("sessionId", claims.SessionID).
			Str("studentId", req.StudentID).
			Msg("attendance already marked, scan accepted idempotently")
	}

	return &ScanResult{
		Accepted:  true,
		State:     StateAccepted,
		SessionID: claims.SessionID,
	}, nil
}

// sessionActive consults the ephemeral marker first; on a miss it falls back
// to the durable record, which is the source of truth of last resort. The
// marker can expire slightly before the reconcile sweep updates the durable
// flag, and stale ephemeral keys can survive a crash, so the two are
// reconciled by trusting durable state.
func (v *ScanValidator) sessionActive(ctx context.Context, sessionID string) (bool, error) {
	_, err := v.ephemeral.Get(ctx, store.ActiveSessionKey(sessionID))
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, apperrors.Cache(err)
	}

	session, err := v.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if session == nil || !session.Active {
		return false, nil
	}
	return session.EndTime.After(v.now()), nil
}

func (v *ScanValidator) nonceMismatch(ctx context.Context, claims *token.Claims) (bool, error) {
	raw, err := v.ephemeral.Get(ctx, store.NonceKey(claims.Nonce))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Cache(err)
	}

	var meta token.NonceMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return false, apperrors.Internal("corrupt nonce metadata").WithCause(err)
	}
	return meta.SessionID != claims.SessionID, nil
}

// classEligible resolves the student's class against the session's eligible
// set. A session with no membership rows is open to every class.
func (v *ScanValidator) classEligible(ctx context.Context, sessionID, studentID string) (bool, error) {
	student, err := v.studentRepo.FindByID(ctx, studentID)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if student == nil {
		return false, apperrors.NotFound("Student")
	}

	classIDs, err := v.sessionClassRepo.ListClassIDs(ctx, sessionID)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if len(classIDs) == 0 {
		return true, nil
	}
	for _, classID := range classIDs {
		if classID == student.ClassID {
			return true, nil
		}
	}
	return false, nil
}

func reject(state ScanState, sessionID string, code apperrors.ErrorCode, details any) *ScanResult {
	log.Debug().
		Str("sessionId", sessionID).
		Str("reason", string(code)).
		Str("state", string(state)).
		Msg("scan rejected")
	return &ScanResult{
		Accepted:   false,
		ReasonCode: code,
		State:      state,
		SessionID:  sessionID,
		Details:    details,
	}
}
