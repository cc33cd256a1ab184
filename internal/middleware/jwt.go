package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// signed with HS256 and injects its subject and role claims into the
// request context under "user_id" and "role".  Tokens are minted by the
// residents' identity service; this service only verifies them.
func JWTAuth(secret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
			if err != nil || !tok.Valid {
				return unauthorized(c, "invalid token")
			}

			// Both claims are mandatory; a token without them cannot be
			// attributed to anybody.
			sub, _ := claims.GetSubject()
			role, _ := claims["role"].(string)
			if sub == "" || role == "" {
				return unauthorized(c, "invalid claims")
			}
			c.Set(ctxUserID, sub)
			c.Set(ctxRole, strings.ToUpper(role))
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": msg})
}
