package router

import (
	"github.com/labstack/echo/v4"

	"github.com/neighborhood/facility-booking/internal/handler"
	"github.com/neighborhood/facility-booking/internal/middleware"
	"github.com/neighborhood/facility-booking/internal/service"
)

// ReservationDeps is the middleware configuration of the /v1 routes.
// RateLimit guards the write routes and Cache the per-day reads; either may
// be nil.
type ReservationDeps struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     func(middleware.DayKeyFunc) echo.MiddlewareFunc
}

func (d ReservationDeps) writeGuard() []echo.MiddlewareFunc {
	if d.RateLimit == nil {
		return nil
	}
	return []echo.MiddlewareFunc{d.RateLimit}
}

func (d ReservationDeps) cached(key middleware.DayKeyFunc) []echo.MiddlewareFunc {
	if d.Cache == nil {
		return nil
	}
	return []echo.MiddlewareFunc{d.Cache(key)}
}

// RegisterReservations registers the /v1 reservation and availability
// routes.  Every route requires a valid token for a resident or an
// administrator; status changes other than cancel are administrator only.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, d ReservationDeps) {
	g := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(service.RoleResident, service.RoleAdmin),
	)

	g.POST("/reservations", h.Submit, d.writeGuard()...)
	g.POST("/reservations/:id/cancel", h.Cancel, d.writeGuard()...)
	g.PATCH("/reservations/:id/status", h.SetStatus,
		append([]echo.MiddlewareFunc{middleware.RequireRole(service.RoleAdmin)}, d.writeGuard()...)...)

	g.GET("/reservations", h.List, d.cached(handler.ListingDay)...)
	g.GET("/reservations/:id", h.Get)
	g.GET("/facilities/:id/availability", h.Availability, d.cached(handler.AvailabilityDay)...)
}
