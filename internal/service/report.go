package service

import (
	"context"

	apperrors "github.com/classmark/attendance-server/internal/errors"
	"github.com/classmark/attendance-server/internal/model"
	"github.com/classmark/attendance-server/internal/repository"
)

type SessionReport struct {
	SessionID       string          `json:"sessionId"`
	CourseName      string          `json:"courseName"`
	CourseCode      string          `json:"courseCode"`
	Active          bool            `json:"active"`
	PresentStudents []model.Student `json:"presentStudents"`
}

// ReportService answers read-only roster and attendance queries. It never
// mutates session state.
type ReportService struct {
	sessionRepo    repository.SessionRepository
	attendanceRepo repository.AttendanceRepository
	courseRepo     repository.CourseRepository
}

func NewReportService(
	sessionRepo repository.SessionRepository,
	attendanceRepo repository.AttendanceRepository,
	courseRepo repository.CourseRepository,
) *ReportService {
	return &ReportService{
		sessionRepo:    sessionRepo,
		attendanceRepo: attendanceRepo,
		courseRepo:     courseRepo,
	}
}

func (s *ReportService) SessionReport(ctx context.Context, sessionID string) (*SessionReport, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	course, err := s.courseRepo.FindByID(ctx, session.CourseID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	students, err := s.attendanceRepo.ListPresentStudents(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if students == nil {
		students = []model.Student{}
	}

	report := &SessionReport{
		SessionID:       sessionID,
		Active:          session.Active,
		PresentStudents: students,
	}
	if course != nil {
		report.CourseName = course.Name
		report.CourseCode = course.Code
	}
	return report, nil
}

func (s *ReportService) ListTeacherCourses(ctx context.Context, teacherID string) ([]model.Course, error) {
	courses, err := s.courseRepo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if courses == nil {
		courses = []model.Course{}
	}
	return courses, nil
}
