package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/classmark/attendance-server/internal/errors"
	"github.com/classmark/attendance-server/internal/service"
)

type ScanHandler struct {
	validator *service.ScanValidator
}

func NewScanHandler(validator *service.ScanValidator) *ScanHandler {
	return &ScanHandler{validator: validator}
}

func (h *ScanHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Submit)
	return r
}

type scanRequest struct {
	QRToken   string          `json:"qrToken"`
	StudentID string          `json:"studentId"`
	ScannedAt json.RawMessage `json:"scannedAt"`
}

// POST /api/scan
func (h *ScanHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.QRToken == "" {
		writeError(w, apperrors.MissingRequired("qrToken"))
		return
	}
	if req.StudentID == "" {
		writeError(w, apperrors.MissingRequired("studentId"))
		return
	}
	scannedAt, ok := parseScannedAt(req.ScannedAt)
	if !ok {
		writeError(w, apperrors.InvalidInput("scannedAt", "must be a unix millisecond timestamp"))
		return
	}

	result, err := h.validator.Validate(r.Context(), service.ScanRequest{
		QRToken:   req.QRToken,
		StudentID: req.StudentID,
		ScannedAt: scannedAt,
	})
	if err != nil {
		if code := apperrors.GetCode(err); code == apperrors.ErrCodeNotFound {
			writeError(w, err)
			return
		}
		log.Error().Err(err).Msg("scan processing failed")
		writeError(w, apperrors.Internal("Internal server error during scan processing"))
		return
	}

	status := http.StatusOK
	if !result.Accepted {
		status = statusForRejection(result.ReasonCode)
	}
	writeJSON(w, status, result)
}

// parseScannedAt accepts both a JSON number and a numeric string, since scan
// clients disagree on how they serialize the capture timestamp.
func parseScannedAt(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, asNumber > 0
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return 0, false
	}
	parsed, err := strconv.ParseInt(asString, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, parsed > 0
}

func statusForRejection(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case apperrors.ErrCodeClassNotEligible:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
