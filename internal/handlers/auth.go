package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/sweetshop/apiserver/internal/auth"
	"github.com/sweetshop/apiserver/internal/services"
)

// AuthHandler provides registration, login and token validation endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	log         *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		log:         log,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService, userService *services.UserService, log *slog.Logger) {
	handler := NewAuthHandler(authService, userService, log)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/validate", handler.Validate)
	r.With(RequireAuth(authService)).Get("/me", handler.Me)
}

// Register creates a new account and returns a token for it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.authService.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message:  "registered",
		Username: strings.TrimSpace(req.Username),
		Token:    token,
	})
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Validate reports whether a token is authentic and unexpired. Claims are
// only returned for valid tokens.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claims, ok := h.authService.Authenticate(req.Token)
	if !ok {
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: true, Claims: claims})
}

// Me returns the stored profile of the token holder.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByUsername(r.Context(), claims.Username())
	if err != nil {
		writeServiceError(w, h.log, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the shape of the request. Uniqueness is left to the
// service.
func (r RegisterRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ValidateRequest struct {
	Token string `json:"token"`
}

type RegisterResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ValidateResponse struct {
	Valid  bool        `json:"valid"`
	Claims auth.Claims `json:"claims,omitempty"`
}
