package response

import (
	"encoding/json"
	"net/http"

	"github.com/diagnosis/dutchville-accounts/pkg/logger"
)

// Body is the envelope every registration outcome is reported in.
type Body struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Client-facing messages. Storage and transport details never reach them.
const (
	MsgRegistered       = "Check your email for verification code"
	MsgInvalidInput     = "Invalid registration data"
	MsgEmailExists      = "Email already exists"
	MsgRateLimited      = "Too many requests. Try again later."
	MsgDatabaseError    = "Database error"
	MsgEmailSendFailed  = "Failed to send verification email"
	MsgInternalError    = "Internal server error"
	MsgMethodNotAllowed = "Method not allowed"
	MsgNotFound         = "Not found"
	MsgBodyTooLarge     = "Request body too large"
)

func WriteJSON(w http.ResponseWriter, statusCode int, body Body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func Created(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusCreated, Body{Success: true, Message: message})
}

func BadRequest(w http.ResponseWriter, message string, fields map[string]string) {
	WriteJSON(w, http.StatusBadRequest, Body{Message: message, Fields: fields})
}

func Conflict(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusConflict, Body{Message: message})
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusTooManyRequests, Body{Message: message})
}

func InternalError(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusInternalServerError, Body{Message: message})
}

func BadGateway(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusBadGateway, Body{Message: message})
}

func PayloadTooLarge(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusRequestEntityTooLarge, Body{Message: message})
}

func NotFound(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusNotFound, Body{Message: message})
}

func MethodNotAllowed(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusMethodNotAllowed, Body{Message: message})
}
