package handler

import (
	"net/http"
	"time"

	apperrors "github.com/classmark/attendance-server/internal/errors"
	"github.com/classmark/attendance-server/internal/service"
)

type ReportHandler struct {
	reports *service.ReportService
}

func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// GET /api/sessions/{sessionID}/report
func (h *ReportHandler) SessionReport(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	report, err := h.reports.SessionReport(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"report":  report,
	})
}

// GET /api/courses?teacherId=...
// Returns the teacher's courses plus the server time, which QR display
// clients use to detect their own clock drift.
func (h *ReportHandler) TeacherCourses(w http.ResponseWriter, r *http.Request) {
	teacherID := r.URL.Query().Get("teacherId")
	if teacherID == "" {
		writeError(w, apperrors.MissingRequired("teacherId"))
		return
	}

	courses, err := h.reports.ListTeacherCourses(r.Context(), teacherID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"courses":    courses,
		"serverTime": time.Now().Format(time.RFC3339),
	})
}
