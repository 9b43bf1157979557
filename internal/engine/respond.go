package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boardsync/boardsync/internal/repository"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/syncer"
)

// StatusError marks error envelopes.
const StatusError = "error"

// ErrorResponse is the JSON envelope for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status"`
}

func (e *Engine) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		if e.logger != nil {
			e.logger.Errorf("Failed to encode JSON response: %v", err)
		}
	}
}

func (e *Engine) writeErrorResponse(w http.ResponseWriter, statusCode int, message, details string) {
	e.TrackError()
	e.writeJSONResponse(w, statusCode, ErrorResponse{
		Error:   message,
		Message: details,
		Status:  StatusError,
	})
}

// writeServiceError maps domain sentinels onto HTTP statuses.
func (e *Engine) writeServiceError(w http.ResponseWriter, err error, defaultMessage string) {
	switch {
	case errors.Is(err, repository.ErrIntegrationNotFound),
		errors.Is(err, repository.ErrBoardMappingNotFound),
		errors.Is(err, repository.ErrColumnMappingNotFound),
		errors.Is(err, repository.ErrItemMappingNotFound),
		errors.Is(err, repository.ErrSyncLogNotFound),
		errors.Is(err, repository.ErrConflictNotFound),
		errors.Is(err, repository.ErrRuleNotFound),
		errors.Is(err, store.ErrNotFound):
		e.writeErrorResponse(w, http.StatusNotFound, err.Error(), defaultMessage)
	case errors.Is(err, syncer.ErrConfiguration):
		e.writeErrorResponse(w, http.StatusBadRequest, err.Error(), defaultMessage)
	case errors.Is(err, syncer.ErrBoardBusy):
		e.writeErrorResponse(w, http.StatusConflict, err.Error(), defaultMessage)
	default:
		e.writeErrorResponse(w, http.StatusInternalServerError, err.Error(), defaultMessage)
	}
	if e.logger != nil {
		e.logger.Errorf("%s: %v", defaultMessage, err)
	}
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
