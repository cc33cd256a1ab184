package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/neighborhood/facility-booking/internal/service"
)

// RequireRole aborts with 403 unless the role stored by JWTAuth is one of
// roles.
func RequireRole(roles ...service.Role) echo.MiddlewareFunc {
	allowed := make(map[service.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Actor(c).Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "FORBIDDEN", "message": "role not allowed"})
			}
			return next(c)
		}
	}
}
