// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/neighborhood/facility-booking/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication.
// db may be nil when the service runs on the in-memory store.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}
