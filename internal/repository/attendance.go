package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/classmark/attendance-server/internal/database"
	"github.com/classmark/attendance-server/internal/model"
)

type AttendanceRepository interface {
	// Upsert inserts an attendance row if none exists for the (session,
	// student) pair. Returns true if a new row was created. The insert is
	// atomic; concurrent duplicates converge to a single row.
	Upsert(ctx context.Context, params model.MarkAttendanceParams) (bool, error)
	FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*model.Attendance, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Attendance, error)
	// ListPresentStudents joins attendance rows with the roster for session
	// reports.
	ListPresentStudents(ctx context.Context, sessionID string) ([]model.Student, error)
	WithTx(tx *sqlx.Tx) AttendanceRepository
}

type attendanceRepo struct {
	db database.DBTX
}

func NewAttendanceRepository(db *sqlx.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) WithTx(tx *sqlx.Tx) AttendanceRepository {
	return &attendanceRepo{db: tx}
}

func (r *attendanceRepo) Upsert(ctx context.Context, params model.MarkAttendanceParams) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO attendances (session_id, student_id, marked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, params.SessionID, params.StudentID, params.MarkedAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *attendanceRepo) FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*model.Attendance, error) {
	var attendance model.Attendance
	err := r.db.GetContext(ctx, &attendance, `
		SELECT * FROM attendances
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	return HandleNotFound(&attendance, err)
}

func (r *attendanceRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Attendance, error) {
	var attendances []model.Attendance
	err := r.db.SelectContext(ctx, &attendances, `
		SELECT * FROM attendances
		WHERE session_id = $1
		ORDER BY marked_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return attendances, nil
}

func (r *attendanceRepo) ListPresentStudents(ctx context.Context, sessionID string) ([]model.Student, error) {
	var students []model.Student
	err := r.db.SelectContext(ctx, &students, `
		SELECT s.* FROM students s
		JOIN attendances a ON a.student_id = s.id
		WHERE a.session_id = $1
		ORDER BY s.enrollment_number
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return students, nil
}
