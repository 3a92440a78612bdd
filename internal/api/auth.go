package api

import (
	"net/http"

	"github.com/tecnokaijin/storefront/internal/middleware"
	"github.com/tecnokaijin/storefront/internal/models"
)

// RegisterHandler handles POST /api/auth/register
func (a *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := a.userService.Register(r.Context(), req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	token := a.sessions.Issue(r.Context(), user.ID)
	respondJSON(w, http.StatusCreated, models.AuthResponse{User: user, Token: token})
}

// LoginHandler handles POST /api/auth/login
func (a *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := a.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	token := a.sessions.Issue(r.Context(), user.ID)
	respondJSON(w, http.StatusOK, models.AuthResponse{User: user, Token: token})
}

// LogoutHandler handles POST /api/auth/logout
func (a *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	a.sessions.Revoke(r.Context(), middleware.SessionToken(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// MeHandler handles GET /api/auth/me
func (a *App) MeHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, middleware.CurrentUser(r.Context()))
}
