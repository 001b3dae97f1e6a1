package utils

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error codes. Clients key on these, never on the
// human-readable message.
const (
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeServerError         = "SERVER_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeCsrfBlocked         = "CSRF_BLOCKED"
	CodeEmailExists         = "EMAIL_EXISTS"
	CodeNoActiveTenant      = "NO_ACTIVE_TENANT"
	CodeNoActiveMembership  = "NO_ACTIVE_MEMBERSHIP"
	CodeAdminOnly           = "ADMIN_ONLY"
	CodeNotAMember          = "NOT_A_MEMBER"
	CodeMembershipNotActive = "MEMBERSHIP_NOT_ACTIVE"
	CodeCodeNotFound        = "CODE_NOT_FOUND"
	CodeCodeExpired         = "CODE_EXPIRED"
	CodeCodeMaxUsesReached  = "CODE_MAX_USES_REACHED"
)

// APIResponse is the JSON envelope for every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries the stable code plus a human-readable message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// WriteJSONResponse writes a success envelope with the given status.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteSuccessResponse writes a 200 success envelope.
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteCreatedResponse writes a 201 success envelope.
func WriteCreatedResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusCreated, data)
}

// WriteErrorResponseWithCode writes an error envelope with a stable code.
func WriteErrorResponseWithCode(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteBadRequestResponse writes a 400 BAD_REQUEST error.
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteUnauthorizedResponse writes a 401 UNAUTHORIZED error.
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// WriteNotFoundResponse writes a 404 NOT_FOUND error.
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusNotFound, CodeNotFound, message)
}

// WriteServerErrorResponse writes a 500 SERVER_ERROR error. Infrastructure
// detail belongs in the server log, not in the message.
func WriteServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusInternalServerError, CodeServerError, message)
}

// ParseJSONBody decodes the request body into v.
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
