package api

import (
	"net/http"

	"github.com/tecnokaijin/storefront/internal/models"
)

// ListUsersHandler handles GET /api/users
func (a *App) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.userService.ListAll(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// GetUserHandler handles GET /api/users/{id}
func (a *App) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	user, err := a.userService.FindByID(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateUserHandler handles PUT /api/users/{id}
func (a *App) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}
	var req models.UpdateUserInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := a.userService.Update(r.Context(), id, req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	// a new password or a lost role ends existing sessions
	if req.Password != nil || (req.Role != nil && *req.Role != models.RoleAdmin) {
		a.sessions.RevokeUser(r.Context(), id)
	}
	respondJSON(w, http.StatusOK, user)
}

// DeleteUserHandler handles DELETE /api/users/{id}
func (a *App) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	if err := a.userService.Delete(r.Context(), id); err != nil {
		a.handleError(w, r, err)
		return
	}
	a.sessions.RevokeUser(r.Context(), id)
	respondJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
