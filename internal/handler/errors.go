package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/neighborhood/facility-booking/internal/apperror"
	"github.com/neighborhood/facility-booking/internal/logging"
)

var statusByKind = map[apperror.Kind]int{
	apperror.KindInvalidWindow:       http.StatusBadRequest,
	apperror.KindInvalidQuantity:     http.StatusBadRequest,
	apperror.KindUnknownFacility:     http.StatusNotFound,
	apperror.KindNotFound:            http.StatusNotFound,
	apperror.KindFacilityUnavailable: http.StatusConflict,
	apperror.KindCapacityExceeded:    http.StatusConflict,
	apperror.KindInvalidTransition:   http.StatusConflict,
	apperror.KindForbidden:           http.StatusForbidden,
	apperror.KindStorage:             http.StatusServiceUnavailable,
}

// respondError writes err as {"error": kind, "message": ...}.  Capacity
// rejections also carry the numbers needed to retry with less.
func respondError(c echo.Context, err error) error {
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		logging.FromContext(c.Request().Context()).Error().Err(err).Msg("unclassified error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": "internal error"})
	}
	status, ok := statusByKind[ae.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := echo.Map{"error": ae.Kind, "message": ae.Message}
	if d := ae.Capacity; d != nil {
		body["capacity"] = d.Capacity
		body["peak_usage"] = d.PeakUsage
		body["available"] = d.Available
		body["peak_window"] = d.PeakWindow
	}
	if ae.Kind == apperror.KindStorage {
		// Never leak driver messages; the cause is in the log.
		body["message"] = "storage temporarily unavailable, retry the request"
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "BAD_REQUEST", "message": msg})
}
