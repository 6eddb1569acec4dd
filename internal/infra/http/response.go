package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"burgerank/internal/domain"
	"burgerank/internal/usecase/ranking"
)

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON отправляет ответ в JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// StatusFor сопоставляет ошибку движка с HTTP статусом.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidWinner),
		errors.Is(err, domain.ErrIncompleteReorder),
		errors.Is(err, domain.ErrDuplicateEntry),
		errors.Is(err, domain.ErrInvalidSlot):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownPair),
		errors.Is(err, domain.ErrBurgerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrStalePreview),
		errors.Is(err, ranking.ErrPublishInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
