package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// APIError represents a structured API error with HTTP status code.
type APIError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// NewAPIError creates a new API error.
func NewAPIError(code int, message string, details string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func BadRequestError(message, details string) *APIError {
	return NewAPIError(http.StatusBadRequest, message, details)
}

func NotFoundError(resource, name string) *APIError {
	return &APIError{
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Context: map[string]interface{}{"name": name},
	}
}

func InternalError(message, details string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message, details)
}

func UnavailableError(message, details string) *APIError {
	return NewAPIError(http.StatusServiceUnavailable, message, details)
}

// NewHTTPErrorHandler returns an Echo error handler that renders every error
// as an APIError and logs server-side failures.
func NewHTTPErrorHandler(logger *zap.SugaredLogger) echo.HTTPErrorHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return func(err error, c echo.Context) {
		// Don't send response if already sent
		if c.Response().Committed {
			return
		}

		var (
			apiErr *APIError
			he     *echo.HTTPError
		)
		switch {
		case errors.As(err, &apiErr):
			// Copy so the details redaction below doesn't touch the caller's value
			copied := *apiErr
			apiErr = &copied
		case errors.As(err, &he):
			apiErr = &APIError{
				Code:    he.Code,
				Message: getHTTPMessage(he.Code),
				Details: fmt.Sprintf("%v", he.Message),
			}
		default:
			apiErr = &APIError{
				Code:    http.StatusInternalServerError,
				Message: "Internal server error",
				Details: err.Error(),
			}
		}

		if apiErr.Code >= http.StatusInternalServerError {
			logger.Errorw("Request failed",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"status", apiErr.Code,
				"error", err)
		}

		// Don't expose internal errors in production
		if apiErr.Code == http.StatusInternalServerError && !c.Echo().Debug {
			apiErr.Details = "An internal error occurred. Please try again later."
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(apiErr.Code)
		} else {
			err = c.JSON(apiErr.Code, apiErr)
		}
		if err != nil {
			logger.Errorw("Failed to write error response", "error", err)
		}
	}
}

// getHTTPMessage returns a user-friendly message for HTTP status codes.
func getHTTPMessage(code int) string {
	messages := map[int]string{
		http.StatusBadRequest:          "Bad request",
		http.StatusNotFound:            "Resource not found",
		http.StatusMethodNotAllowed:    "Method not allowed",
		http.StatusNotAcceptable:       "Not acceptable",
		http.StatusInternalServerError: "Internal server error",
		http.StatusServiceUnavailable:  "Service unavailable",
	}

	if msg, ok := messages[code]; ok {
		return msg
	}
	return http.StatusText(code)
}
