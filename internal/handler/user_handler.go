package handler

import (
	"net/http"
	"time"

	"auth-notify-service/internal/service"
	"auth-notify-service/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

type FacebookLoginRequest struct {
	AccessToken string                   `json:"access_token" validate:"required"`
	UserData    service.FacebookUserData `json:"user_data"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type VerifyTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Provider string `json:"provider" validate:"omitempty,oneof=google"`
}

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	responder
	userService *service.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		responder:   responder{logger: logger},
		userService: userService,
	}
}

// RegisterRoutes registers all user routes
func (h *UserHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.Route("/users", func(r chi.Router) {
		// Public routes
		r.Post("/", h.CreateUser)
		r.Post("/login", h.Login)
		r.Post("/google-login", h.GoogleLogin)
		r.Post("/facebook-login", h.FacebookLogin)
		r.Post("/refresh-token", h.RefreshToken)
		r.Post("/verify-token", h.VerifyToken)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", h.ListUsers)
			r.Get("/{userID}", h.GetUserByID)
			r.Put("/{userID}", h.UpdateUser)
		})
	})
}

// CreateUser handles email/password registration
// @Router /users [post]
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req service.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.userService.Register(r.Context(), &req)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to create user")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(user, "User created successfully"))
	h.logger.Info("User created via HTTP",
		util.Uint("user_id", user.ID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CreateUser"),
	)
}

// Login handles email/password sign-in
// @Router /users/login [post]
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	auth, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondWithServiceError(w, err, "Login failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(auth, "Login successful"))
}

// GoogleLogin signs in with a Google ID token
// @Router /users/google-login [post]
func (h *UserHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	auth, err := h.userService.GoogleLogin(r.Context(), req.IDToken)
	if err != nil {
		h.respondWithServiceError(w, err, "Google login failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(auth, "Login successful"))
}

// FacebookLogin signs in with a Facebook access token
// @Router /users/facebook-login [post]
func (h *UserHandler) FacebookLogin(w http.ResponseWriter, r *http.Request) {
	var req FacebookLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	auth, err := h.userService.FacebookLogin(r.Context(), req.AccessToken, req.UserData)
	if err != nil {
		h.respondWithServiceError(w, err, "Facebook login failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(auth, "Login successful"))
}

// RefreshToken exchanges a refresh token for a new token pair
// @Router /users/refresh-token [post]
func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	auth, err := h.userService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondWithServiceError(w, err, "Token refresh failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(auth, "Token refreshed"))
}

// VerifyToken reports the claims of a valid token
// @Router /users/verify-token [post]
func (h *UserHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	claims, err := h.userService.VerifyToken(r.Context(), req.Token, req.Provider)
	if err != nil {
		h.respondWithServiceError(w, err, "Token verification failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"valid":  true,
		"claims": claims,
	}, "Token is valid"))
}

// ListUsers pages through users by id
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parsePage(r)
	if err != nil {
		h.respondWithServiceError(w, err, "Invalid pagination")
		return
	}

	users, err := h.userService.ListUsers(r.Context(), skip, limit)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to list users")
		return
	}

	response := successResponse(users, "Users retrieved successfully")
	response.Meta = &Meta{Skip: skip, Limit: limit, Count: len(users)}
	h.respondWithJSON(w, http.StatusOK, response)
}

// GetUserByID handles user retrieval by ID
// @Router /users/{userID} [get]
func (h *UserHandler) GetUserByID(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		h.respondWithServiceError(w, err, "Invalid user ID format")
		return
	}

	user, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get user")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(user, "User retrieved successfully"))
}

// UpdateUser applies a partial update to the caller's own account
// @Router /users/{userID} [put]
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	userID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		h.respondWithServiceError(w, err, "Invalid user ID format")
		return
	}
	if callerID, _ := UserIDFromContext(r.Context()); callerID != userID {
		h.respondWithServiceError(w, service.ErrPermissionDenied, "Users may only update their own account")
		return
	}

	var req service.UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateUser(r.Context(), userID, &req)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to update user")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(user, "User updated successfully"))
	h.logger.Info("User updated via HTTP",
		util.Uint("user_id", userID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "UpdateUser"),
	)
}
