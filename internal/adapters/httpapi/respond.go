package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/auth"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func respondDetail(w http.ResponseWriter, logger *zap.Logger, status int, detail string) {
	respondJSON(w, logger, status, errorResponse{Detail: detail})
}

// respondError maps domain errors onto HTTP status codes
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, logger, http.StatusBadRequest, errorResponse{Detail: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, core.ErrInvalidArgument), errors.Is(err, core.ErrInvalidMode):
		respondDetail(w, logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		respondDetail(w, logger, http.StatusUnauthorized, err.Error())
	case errors.Is(err, core.ErrForbidden):
		respondDetail(w, logger, http.StatusForbidden, "you do not have access to this resource")
	case errors.Is(err, core.ErrNotFound):
		respondDetail(w, logger, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrRunAlreadyCompleted), errors.Is(err, core.ErrConflict):
		respondDetail(w, logger, http.StatusConflict, err.Error())
	default:
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondDetail(w, logger, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return core.NewValidationError("body", "invalid JSON body")
	}
	return nil
}

// queryInt parses an optional integer query parameter; missing means zero
func queryInt(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, core.NewValidationError(name, name+" must be an integer")
	}
	return n, nil
}

// queryBool accepts the usual truthy spellings
func queryBool(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
