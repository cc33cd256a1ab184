package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/neighborhood/facility-booking/internal/service"
)

// Actor returns the authenticated caller stored by JWTAuth.  The zero Actor
// is returned for unauthenticated requests.
func Actor(c echo.Context) service.Actor {
	id, _ := c.Get(ctxUserID).(string)
	role, _ := c.Get(ctxRole).(string)
	return service.Actor{ID: id, Role: service.Role(role)}
}

// userID is Actor(c).ID with a placeholder for anonymous callers, used to
// build rate limit and cache keys.
func userID(c echo.Context) string {
	if id := Actor(c).ID; id != "" {
		return id
	}
	return "anon"
}
