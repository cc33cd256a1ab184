package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/neighborhood/facility-booking/internal/logging"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestLogger attaches a request-scoped zerolog logger carrying the
// request id to the request context and logs one line per request.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(HeaderRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, rid)

			logger := log.With().Str("request_id", rid).Logger()
			c.SetRequest(req.WithContext(logging.WithLogger(req.Context(), logger)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			ev := logger.Info()
			switch {
			case status >= 500:
				ev = logger.Error()
			case status >= 400:
				ev = logger.Warn()
			}
			ev.Str("method", req.Method).
				Str("path", c.Path()).
				Str("uri", req.RequestURI).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("user_id", Actor(c).ID).
				Msg("request")
			return nil
		}
	}
}
