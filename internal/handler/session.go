package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/classmark/attendance-server/internal/errors"
	"github.com/classmark/attendance-server/internal/service"
	"github.com/classmark/attendance-server/internal/util"
)

type SessionHandler struct {
	lifecycle *service.LifecycleManager
}

func NewSessionHandler(lifecycle *service.LifecycleManager) *SessionHandler {
	return &SessionHandler{lifecycle: lifecycle}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Lazy sweep: expired sessions are reconciled before any lifecycle
	// operation runs, so the durable active flag never stays stale behind
	// an incoming request.
	r.Use(h.reconcileFirst)

	r.Post("/start", h.Start)
	r.Post("/{sessionID}/extend", h.Extend)
	r.Post("/{sessionID}/end", h.End)
	r.Get("/{sessionID}/qr", h.QR)
	r.Get("/{sessionID}/live", h.Live)

	return r
}

func (h *SessionHandler) reconcileFirst(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.lifecycle.ReconcileExpired(r.Context()); err != nil {
			// The request can still proceed; the background job retries.
			log.Error().Err(err).Msg("opportunistic reconcile failed")
		}
		next.ServeHTTP(w, r)
	})
}

type startSessionRequest struct {
	CourseID        string   `json:"courseId"`
	TeacherID       string   `json:"teacherId"`
	DurationMinutes int      `json:"duration"`
	ClassIDs        []string `json:"classIds"`
}

// POST /api/sessions/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.CourseID == "" {
		writeError(w, apperrors.MissingRequired("courseId"))
		return
	}
	if req.TeacherID == "" {
		writeError(w, apperrors.MissingRequired("teacherId"))
		return
	}

	session, err := h.lifecycle.Open(r.Context(), service.OpenSessionParams{
		CourseID:        req.CourseID,
		TeacherID:       req.TeacherID,
		DurationMinutes: req.DurationMinutes,
		ClassIDs:        req.ClassIDs,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to open session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": session,
	})
}

type extendSessionRequest struct {
	ExtraMinutes int `json:"extraMinutes"`
}

// POST /api/sessions/{sessionID}/extend
func (h *SessionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	var req extendSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	session, err := h.lifecycle.Extend(r.Context(), sessionID, req.ExtraMinutes)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Session extended",
		"newEnd":  session.EndTime.Format(time.RFC3339),
	})
}

// POST /api/sessions/{sessionID}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.lifecycle.Close(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	message := "Session closed successfully"
	if result.AlreadyClosed {
		message = "Session was already closed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": message,
		"result":  result,
	})
}

// GET /api/sessions/{sessionID}/qr
func (h *SessionHandler) QR(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	issued, err := h.lifecycle.IssueQR(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"qrToken":   issued.Token,
		"validFrom": issued.ValidFrom,
		"validTo":   issued.ValidTo,
	})
}

// GET /api/sessions/{sessionID}/live
func (h *SessionHandler) Live(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	students, err := h.lifecycle.GetLiveAttendance(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to read live attendance")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"presentStudents": students,
	})
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		writeError(w, apperrors.InvalidInput("sessionID", "must be a UUID"))
		return "", false
	}
	return sessionID, true
}
