package handler

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/classmark/attendance-server/internal/database"
	"github.com/classmark/attendance-server/internal/model"
	"github.com/classmark/attendance-server/internal/repository"
)

// Mock repositories

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) ExtendEnd(ctx context.Context, id string, newEnd time.Time) (bool, error) {
	args := m.Called(ctx, id, newEnd)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) SetInactive(ctx context.Context, id string, endTime time.Time) (bool, error) {
	args := m.Called(ctx, id, endTime)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) FindExpiredActive(ctx context.Context, now time.Time) ([]model.Session, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

type mockAttendanceRepo struct {
	mock.Mock
}

func (m *mockAttendanceRepo) Upsert(ctx context.Context, params model.MarkAttendanceParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func (m *mockAttendanceRepo) FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*model.Attendance, error) {
	args := m.Called(ctx, sessionID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attendance), args.Error(1)
}

func (m *mockAttendanceRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Attendance, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Attendance), args.Error(1)
}

func (m *mockAttendanceRepo) ListPresentStudents(ctx context.Context, sessionID string) ([]model.Student, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Student), args.Error(1)
}

func (m *mockAttendanceRepo) WithTx(tx *sqlx.Tx) repository.AttendanceRepository {
	return m
}

type mockStudentRepo struct {
	mock.Mock
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*model.Student, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Student), args.Error(1)
}

func (m *mockStudentRepo) ListByClass(ctx context.Context, classID string) ([]model.Student, error) {
	args := m.Called(ctx, classID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Student), args.Error(1)
}

type mockCourseRepo struct {
	mock.Mock
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Course), args.Error(1)
}

func (m *mockCourseRepo) ListByTeacher(ctx context.Context, teacherID string) ([]model.Course, error) {
	args := m.Called(ctx, teacherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Course), args.Error(1)
}

type mockSessionClassRepo struct {
	mock.Mock
}

func (m *mockSessionClassRepo) Add(ctx context.Context, sessionID, classID string) error {
	args := m.Called(ctx, sessionID, classID)
	return args.Error(0)
}

func (m *mockSessionClassRepo) ListClassIDs(ctx context.Context, sessionID string) ([]string, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockSessionClassRepo) WithTx(tx *sqlx.Tx) repository.SessionClassRepository {
	return m
}

// fakeTxRunner runs the transaction function directly; the mock repositories
// ignore the nil transaction handle.
type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}
