package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tradepost-io/tradepost/internal/auth"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("[API] failed to encode response: %v", err)
		}
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}

// respondServiceError translates an auth service error into the HTTP error
// taxonomy. Unknown errors are logged and surface as a 500; the request
// fails but the process keeps serving.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidRole):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, auth.ErrExpiredToken):
		respondError(w, http.StatusUnauthorized, "token_expired", err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "invalid_token", err.Error())
	case errors.Is(err, auth.ErrSessionRevoked):
		respondError(w, http.StatusForbidden, "session_revoked", err.Error())
	case errors.Is(err, auth.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, auth.ErrUserInactive):
		respondError(w, http.StatusForbidden, "account_deactivated", err.Error())
	default:
		log.Printf("[API] internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
