// internal/utils/response.go
package utils

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"siggen-service/internal/model"
)

// APIResponse is the envelope of every API reply
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError carries the taxonomy code of a failed request
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// statusCodes names statuses that no device error maps to
var statusCodes = map[int]string{
	http.StatusBadRequest:          "BAD_REQUEST",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusConflict:            "CONFLICT",
	http.StatusInternalServerError: "INTERNAL_SERVER_ERROR",
	http.StatusBadGateway:          "BAD_GATEWAY",
	http.StatusServiceUnavailable:  "SERVICE_UNAVAILABLE",
	http.StatusGatewayTimeout:      "TIMEOUT",
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	respond(c, statusCode, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends a failure that is not a device error, such as a
// malformed body. The code is derived from the status.
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	apiError := &APIError{Code: codeForStatus(statusCode), Message: message}
	if err != nil {
		apiError.Details = err.Error()
	}

	respond(c, statusCode, APIResponse{Message: message, Error: apiError})
}

// DeviceErrorResponse sends a failure whose status and code follow the
// device error taxonomy. data may carry extra context such as the failed
// sequence step.
func DeviceErrorResponse(c *gin.Context, message string, err error, data interface{}) {
	statusCode := StatusForError(err)

	code := model.ErrorCode(err)
	if code == "UNKNOWN_ERROR" {
		code = codeForStatus(statusCode)
	}

	respond(c, statusCode, APIResponse{
		Message: message,
		Data:    data,
		Error:   &APIError{Code: code, Message: message, Details: err.Error()},
	})
}

// ValidationErrorResponse reports body fields that failed their binding rule
func ValidationErrorResponse(c *gin.Context, fields map[string]string) {
	respond(c, http.StatusBadRequest, APIResponse{
		Message: "Validation failed",
		Data:    gin.H{"validation_errors": fields},
		Error:   &APIError{Code: "VALIDATION_ERROR", Message: "Request validation failed"},
	})
}

// StatusForError maps an error to the HTTP status returned to callers
func StatusForError(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrPortNotFound), errors.Is(err, model.ErrNoDeviceFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrPortAlreadyOpen), errors.Is(err, model.ErrPortNotOpen):
		return http.StatusConflict
	case errors.Is(err, model.ErrIoFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respond(c *gin.Context, statusCode int, response APIResponse) {
	response.Timestamp = time.Now()
	if requestID, ok := c.Get("request_id"); ok {
		response.RequestID, _ = requestID.(string)
	}
	c.JSON(statusCode, response)
}

func codeForStatus(statusCode int) string {
	if code, ok := statusCodes[statusCode]; ok {
		return code
	}
	return "UNKNOWN_ERROR"
}
