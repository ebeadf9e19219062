package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"evalgo.org/mgapphost/internal/validation"
)

// Accepts returns middleware that answers 406 unless the Accept header
// admits one of offered. A missing header admits anything.
func Accepts(offered ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accept := c.Request().Header.Get(echo.HeaderAccept)
			if accept == "" || acceptsAny(accept, offered) {
				return next(c)
			}

			return NewAPIError(http.StatusNotAcceptable, "Not acceptable",
				"this endpoint produces "+strings.Join(offered, ", ")+"; got Accept: "+accept)
		}
	}
}

// acceptsAny reports whether any media range in accept matches one of
// offered. Ranges with q=0 are refusals.
func acceptsAny(accept string, offered []string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaRange, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if q, ok := params["q"]; ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}

		for _, o := range offered {
			if mediaRange == "*/*" || mediaRange == o {
				return true
			}
			if prefix, ok := strings.CutSuffix(mediaRange, "/*"); ok && strings.HasPrefix(o, prefix+"/") {
				return true
			}
		}
	}
	return false
}

// ValidateResourceName returns middleware that rejects a :name path parameter
// that could never name a resource.
func ValidateResourceName(v *validation.Validator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			name := c.Param("name")
			if name == "" {
				return next(c)
			}

			if err := v.ResourceName(name); err != nil {
				var ve *validation.ValidationError
				if errors.As(err, &ve) {
					return BadRequestError("Invalid resource name", ve.Message)
				}
				return BadRequestError("Invalid resource name", err.Error())
			}

			return next(c)
		}
	}
}

// responseHeaders are set on every response. Run state changes between
// runs, so nothing is cacheable.
var responseHeaders = map[string]string{
	echo.HeaderXContentTypeOptions: "nosniff",
	echo.HeaderXFrameOptions:       "DENY",
	"Referrer-Policy":              "no-referrer",
	echo.HeaderCacheControl:        "no-store",
}

// SecurityHeaders sets responseHeaders before calling next.
func SecurityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		for k, v := range responseHeaders {
			h.Set(k, v)
		}
		return next(c)
	}
}

// RequestLogger logs one structured line per request.
func RequestLogger(logger *zap.SugaredLogger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				logger.Warnw("Request", append(fields, "error", v.Error)...)
				return nil
			}
			logger.Debugw("Request", fields...)
			return nil
		},
	})
}
