package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/accounthub/apiserver/internal/services"
	"github.com/accounthub/apiserver/internal/store"
	"github.com/accounthub/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AuthHandler provides the account endpoints.
type AuthHandler struct {
	sessions *services.SessionService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(sessions *services.SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// UserRouter registers the account routes on the given router.
func UserRouter(r chi.Router, sessions *services.SessionService) {
	handler := NewAuthHandler(sessions)
	requireAuth := RequireAuth(sessions)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(requireAuth).Get("/me", handler.Me)
	r.With(requireAuth).Post("/logout", handler.Logout)
	r.With(requireAuth).Post("/logoutAll", handler.LogoutAll)
}

// Register creates a new user account. It does not issue a token; the
// client logs in separately.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	err := h.sessions.Register(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case err == nil:
		writeMessage(w, http.StatusCreated, "User registered successfully!")
	case errors.Is(err, services.ErrMissingFields):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusBadRequest, "username or email already exists")
	default:
		writeError(w, http.StatusInternalServerError, "failed to create user")
	}
}

// Login verifies credentials and returns the user together with a fresh
// bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, token, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUnableToLogin) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: user, Token: token})
}

// Me returns the authenticated user's profile. The password hash and the
// token list are excluded by the User JSON tags.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Logout revokes the token used for this request. Sessions on other
// devices stay active.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, userErr := userFromContext(r.Context())
	token, tokenErr := tokenFromContext(r.Context())
	if userErr != nil || tokenErr != nil {
		writeError(w, http.StatusInternalServerError, services.ErrNoSession.Error())
		return
	}

	if err := h.sessions.Logout(r.Context(), user, token); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	writeMessage(w, http.StatusOK, "Logged out successfully!")
}

// LogoutAll revokes every active token for the authenticated user.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, services.ErrNoSession.Error())
		return
	}

	if err := h.sessions.LogoutAll(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	writeMessage(w, http.StatusOK, "Logged out from all devices successfully!")
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a simple acknowledgment payload.
type MessageResponse struct {
	Message string `json:"message"`
}
