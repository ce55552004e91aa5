package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/classmark/attendance-server/internal/database"
	"github.com/classmark/attendance-server/internal/model"
)

type StudentRepository interface {
	FindByID(ctx context.Context, id string) (*model.Student, error)
	ListByClass(ctx context.Context, classID string) ([]model.Student, error)
}

type CourseRepository interface {
	FindByID(ctx context.Context, id string) (*model.Course, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]model.Course, error)
}

// SessionClassRepository manages which classes may scan into a session.
type SessionClassRepository interface {
	Add(ctx context.Context, sessionID, classID string) error
	ListClassIDs(ctx context.Context, sessionID string) ([]string, error)
	WithTx(tx *sqlx.Tx) SessionClassRepository
}

type studentRepo struct {
	db database.DBTX
}

func NewStudentRepository(db *sqlx.DB) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) FindByID(ctx context.Context, id string) (*model.Student, error) {
	var student model.Student
	err := r.db.GetContext(ctx, &student, `
		SELECT * FROM students WHERE id = $1
	`, id)
	return HandleNotFound(&student, err)
}

func (r *studentRepo) ListByClass(ctx context.Context, classID string) ([]model.Student, error) {
	var students []model.Student
	err := r.db.SelectContext(ctx, &students, `
		SELECT * FROM students
		WHERE class_id = $1
		ORDER BY enrollment_number
	`, classID)
	if err != nil {
		return nil, err
	}
	return students, nil
}

type courseRepo struct {
	db database.DBTX
}

func NewCourseRepository(db *sqlx.DB) CourseRepository {
	return &courseRepo{db: db}
}

func (r *courseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	var course model.Course
	err := r.db.GetContext(ctx, &course, `
		SELECT * FROM courses WHERE id = $1
	`, id)
	return HandleNotFound(&course, err)
}

func (r *courseRepo) ListByTeacher(ctx context.Context, teacherID string) ([]model.Course, error) {
	var courses []model.Course
	err := r.db.SelectContext(ctx, &courses, `
		SELECT * FROM courses
		WHERE teacher_id = $1
		ORDER BY code
	`, teacherID)
	if err != nil {
		return nil, err
	}
	return courses, nil
}

type sessionClassRepo struct {
	db database.DBTX
}

func NewSessionClassRepository(db *sqlx.DB) SessionClassRepository {
	return &sessionClassRepo{db: db}
}

func (r *sessionClassRepo) WithTx(tx *sqlx.Tx) SessionClassRepository {
	return &sessionClassRepo{db: tx}
}

func (r *sessionClassRepo) Add(ctx context.Context, sessionID, classID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_classes (session_id, class_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id, class_id) DO NOTHING
	`, sessionID, classID)
	return err
}

func (r *sessionClassRepo) ListClassIDs(ctx context.Context, sessionID string) ([]string, error) {
	var classIDs []string
	err := r.db.SelectContext(ctx, &classIDs, `
		SELECT class_id FROM session_classes
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return classIDs, nil
}
