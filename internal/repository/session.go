package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/classmark/attendance-server/internal/database"
	"github.com/classmark/attendance-server/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// ExtendEnd advances the end time of an active session. Returns false if
	// the session is missing or already inactive.
	ExtendEnd(ctx context.Context, id string, newEnd time.Time) (bool, error)
	// SetInactive marks the session closed with the given end time. Returns
	// false if it was already inactive.
	SetInactive(ctx context.Context, id string, endTime time.Time) (bool, error)
	// FindExpiredActive lists sessions still flagged active whose end time has
	// passed. These are the reconcile sweep's targets.
	FindExpiredActive(ctx context.Context, now time.Time) ([]model.Session, error)
	// WithTx returns a repository bound to the given transaction.
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (course_id, teacher_id, start_time, end_time, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING *
	`, params.CourseID, params.TeacherID, params.StartTime, params.EndTime)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) ExtendEnd(ctx context.Context, id string, newEnd time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			end_time = $2,
			updated_at = $3
		WHERE id = $1 AND active = TRUE
	`, id, newEnd, time.Now())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *sessionRepo) SetInactive(ctx context.Context, id string, endTime time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			active = FALSE,
			end_time = $2,
			updated_at = $3
		WHERE id = $1 AND active = TRUE
	`, id, endTime, time.Now())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *sessionRepo) FindExpiredActive(ctx context.Context, now time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE active = TRUE AND end_time < $1
		ORDER BY end_time
	`, now)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
