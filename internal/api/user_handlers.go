package api

import (
	"encoding/json"
	"net/http"

	"github.com/tradepost-io/tradepost/internal/auth"
	"github.com/tradepost-io/tradepost/internal/models"
	"github.com/tradepost-io/tradepost/internal/store"
)

type updateProfileRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
	Role      *string `json:"role" validate:"omitempty,oneof=buyer seller admin"`
	Avatar    *string `json:"avatar" validate:"omitempty,url"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// ProfileHandler handles GET /user/profile.
func (a *API) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid_token", "no token")
		return
	}

	user, err := a.svc.GetUser(identity.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// UpdateProfileHandler handles PUT /user/profile. Only the allow-listed
// fields can change; anything else in the body is ignored.
func (a *API) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid_token", "no token")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	upd := store.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Avatar:    req.Avatar,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		upd.Role = &role
	}

	user, err := a.svc.UpdateProfile(identity.UserID, upd)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// ChangePasswordHandler handles PUT /user/password. A successful change
// revokes every session the user holds, including the one making this
// request.
func (a *API) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid_token", "no token")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if err := a.svc.ChangePassword(identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct{}{})
}
