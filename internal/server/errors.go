package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/planforge/internal/plan/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrOrgRequired        = errors.New("organization_required")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// planValidationErrors flattens the validator's field map into the wire
// envelope, failing fields in deterministic order.
func planValidationErrors(verr *plandomain.ValidationError) []ValidationError {
	out := make([]ValidationError, 0, len(verr.Fields))
	for _, field := range verr.Fields.Fields() {
		fieldErr := verr.Fields[field]
		out = append(out, ValidationError{
			Field:   field,
			Code:    fieldErr.Code,
			Message: fieldErr.Message,
		})
	}
	return out
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var planErr *plandomain.ValidationError
	if errors.As(err, &planErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  planValidationErrors(planErr),
		}
	}

	if isPlanValidationError(err) || errors.Is(err, ErrOrgRequired) || errors.Is(err, ErrInvalidRequest) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, plandomain.ErrDuplicateCode):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limited",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_organization", "organization_required":
		return "organization"
	case "invalid_code":
		return "code"
	case "invalid_id":
		return "id"
	case "invalid_request":
		return "request"
	default:
		return ""
	}
}

// classifyErrorForLog buckets errors for the request log so 4xx noise and
// real faults separate cleanly.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}

	var planErr *plandomain.ValidationError
	if asValidationErrors(err) != nil || errors.As(err, &planErr) || isPlanValidationError(err) {
		return "validation_error", err.Error()
	}

	switch {
	case isNotFoundError(err):
		return "not_found", err.Error()
	case errors.Is(err, ErrRateLimited):
		return "rate_limited", err.Error()
	case errors.Is(err, plandomain.ErrDuplicateCode), errors.Is(err, ErrConflict):
		return "conflict", err.Error()
	default:
		return "internal_error", err.Error()
	}
}
