package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/neighborhood/facility-booking/internal/config"
	"github.com/neighborhood/facility-booking/internal/logging"
)

// tokenBucket is a token bucket kept as a single timestamp (GCRA): the key
// holds the instant at which the bucket would be full again.  A request is
// let through while that instant is no more than capacity-1 refill steps
// ahead of now.  Returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local now = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local per = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5]) * 1000

if per <= 0 or interval <= 0 then
    return { 1, burst, 0 }
end
local step = math.max(1, math.floor(interval / per))

local full_at = tonumber(redis.call('GET', KEYS[1])) or now
if full_at < now then
    full_at = now
end
local slack = (burst - 1) * step
if full_at - now > slack then
    return { 0, 0, full_at - now - slack }
end

full_at = full_at + step
redis.call('SET', KEYS[1], full_at, 'PX', math.max(ttl_ms, full_at - now))
return { 1, math.floor((burst * step - (full_at - now)) / step), 0 }
`)

// RateLimit returns a Redis token bucket middleware.  Without Redis, or when
// disabled, it passes every request through; a Redis error on a single
// request also lets the request through.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := rateKey(cfg, c)
			vals, err := tokenBucket.Run(ctx, rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL/time.Second),
			).Int64Slice()
			if err != nil || len(vals) != 3 {
				logging.FromContext(ctx).Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				return next(c)
			}
			allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if allowed {
				return next(c)
			}

			secs := int(math.Ceil(float64(retryMs) / 1000.0))
			h.Set("Retry-After", strconv.Itoa(secs))
			logging.FromContext(ctx).Debug().Str("key", key).Int64("retry_ms", retryMs).Msg("rate limited")
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "RATE_LIMITED",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", userID(c))
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", userID(c), "route", route)
	default:
		parts = append(parts, "ip", ip, "user", userID(c), "route", route)
	}
	return strings.Join(parts, ":")
}
