package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
}

const apiVersion = "v1"

func writeJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: apiVersion},
		RequestID: requestIDOf(c),
	})
}

func writeList(c *gin.Context, data interface{}, total int) {
	c.JSON(http.StatusOK, JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: apiVersion, TotalCount: total},
		RequestID: requestIDOf(c),
	})
}

// writeError maps err onto the envelope. Unknown errors are logged and
// reported without their internals.
func writeError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), nil).Error("request failed",
			logger.String("path", c.FullPath()),
			logger.String("code", body.Code),
			logger.Err(err),
		)
	}
	c.JSON(status, JSONResponse{
		Success:   false,
		Error:     body,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestIDOf(c),
	})
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}

func errorBody(err error) (int, *APIError) {
	code := shared.CodeOf(err)
	status := StatusOf(code)
	msg := shared.MessageOf(err)
	if status == http.StatusInternalServerError {
		msg = "an unexpected error occurred"
	}
	return status, &APIError{Code: code, Message: msg}
}

// StatusOf maps an API error code to its HTTP status.
func StatusOf(code string) int {
	switch code {
	case shared.CodeNotEnrolled, shared.CodeForbidden:
		return http.StatusForbidden
	case shared.CodeAlreadyEnrolled, shared.CodeInvalidTransition, shared.CodeConflict:
		return http.StatusConflict
	case shared.CodeModuleNotFound, shared.CodeContentNotFound, shared.CodeEnrollmentNotFound, shared.CodeNotFound:
		return http.StatusNotFound
	case shared.CodeValidation:
		return http.StatusBadRequest
	case shared.CodeUnauthorized:
		return http.StatusUnauthorized
	case shared.CodeUnavailable:
		return http.StatusServiceUnavailable
	case codeRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// ══════════════════════════════════════════════════════════════════════════════
// BINDING ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// bindError turns a gin binding failure into a validation error naming the
// offending fields.
func bindError(op string, err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		parts := make([]string, 0, len(ve))
		for _, fe := range ve {
			parts = append(parts, fieldMessage(fe))
		}
		return shared.NewValidationError(op, "%s", strings.Join(parts, "; "))
	}

	var syntax *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typ):
		return shared.NewValidationError(op, "%s must be a %s", typ.Field, typ.Type.String())
	case errors.As(err, &syntax), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return shared.NewValidationError(op, "request body must be valid JSON")
	}
	return shared.NewValidationError(op, "%s", err.Error())
}

var registerTagNames sync.Once

// useWireFieldNames makes validation errors report json/form field names.
func useWireFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(wireName)
	})
}

func wireName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

func fieldMessage(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
