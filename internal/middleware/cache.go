package middleware

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/neighborhood/facility-booking/internal/cache"
	"github.com/neighborhood/facility-booking/internal/model"
)

// DayKeyFunc extracts the (facility, date) a read request is about.  It
// returns false for requests that are not scoped to a single day; those
// are never cached.
type DayKeyFunc func(c echo.Context) (model.DayKey, bool)

// captureWriter tees the response body while forwarding it to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

// CacheByDay serves GET responses from the per-day listing cache.  Entries
// are keyed by caller and URL within the day, because residents see only
// their own reservations.  Only 200 responses are stored.
func CacheByDay(lc *cache.Listing, dayKey DayKeyFunc) echo.MiddlewareFunc {
	if lc == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			day, ok := dayKey(c)
			if !ok {
				return next(c)
			}
			ctx := c.Request().Context()
			field := cacheField(c)

			if bs, ok := lc.Get(ctx, day, field); ok {
				if status, hdr, body, ok := decodePayload(bs); ok {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(status, hdr.Get(echo.HeaderContentType), body)
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK {
				return nil
			}
			hdr := http.Header{}
			if ct := c.Response().Header().Get(echo.HeaderContentType); ct != "" {
				hdr.Set(echo.HeaderContentType, ct)
			}
			if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
				lc.Set(ctx, day, field, payload)
			}
			return nil
		}
	}
}

func cacheField(c echo.Context) string {
	a := Actor(c)
	u := c.Request().URL
	sum := sha1.Sum([]byte(a.ID + "|" + string(a.Role) + "|" + u.Path + "?" + u.RawQuery))
	return hex.EncodeToString(sum[:])
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = http.Header{}
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}
