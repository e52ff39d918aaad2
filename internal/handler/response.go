package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"auth-notify-service/internal/messaging"
	"auth-notify-service/internal/queue"
	"auth-notify-service/internal/service"
	"auth-notify-service/internal/util"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	errUnauthorized = errors.New("missing or invalid bearer token")
	errInvalidBody  = errors.New("invalid request body")
	errInvalidParam = errors.New("invalid parameter")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta represents pagination metadata
type Meta struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit,omitempty"`
	Count int `json:"count"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// responder holds the helpers every handler shares.
type responder struct {
	logger *zap.Logger
}

// respondWithJSON sends a JSON response
func (h responder) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h responder) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	fields := []zap.Field{
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	}
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response", fields...)
	} else {
		h.logger.Warn("HTTP error response", fields...)
	}
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// respondWithServiceError maps err to its status code and responds.
func (h responder) respondWithServiceError(w http.ResponseWriter, err error, message string) {
	h.respondWithError(w, getStatusCode(err), err, message)
}

// decode reads a JSON body into req and validates its struct tags.
func (h responder) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errInvalidBody, err), "Invalid request body")
		return false
	}
	if err := validate.Struct(req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", service.ErrInvalidInput, err), "Validation failed")
		return false
	}
	return true
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrEmailRequired),
		errors.Is(err, service.ErrUserAlreadyExists),
		errors.Is(err, errInvalidBody),
		errors.Is(err, errInvalidParam):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPermissionDenied),
		errors.Is(err, service.ErrAccountInactive):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrNotificationNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, messaging.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrResultStoreUnavailable),
		errors.Is(err, queue.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseID reads a positive numeric path or query value.
func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q is not a valid id", errInvalidParam, raw)
	}
	return uint(id), nil
}

// parsePage reads skip and limit query parameters. The repositories apply
// the default and the upper bound for limit.
func parsePage(r *http.Request) (skip, limit int, err error) {
	q := r.URL.Query()
	if v := q.Get("skip"); v != "" {
		if skip, err = strconv.Atoi(v); err != nil || skip < 0 {
			return 0, 0, fmt.Errorf("%w: skip must be a non-negative integer", errInvalidParam)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("%w: limit must be a non-negative integer", errInvalidParam)
		}
	}
	return skip, limit, nil
}
