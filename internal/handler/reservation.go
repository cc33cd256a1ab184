package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/neighborhood/facility-booking/internal/apperror"
	"github.com/neighborhood/facility-booking/internal/middleware"
	"github.com/neighborhood/facility-booking/internal/model"
	"github.com/neighborhood/facility-booking/internal/repository"
	"github.com/neighborhood/facility-booking/internal/service"
)

// Admission is the part of the admission controller the HTTP layer uses.
type Admission interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*model.Reservation, error)
	Availability(ctx context.Context, facilityID string, date model.Date) (*service.Availability, error)
}

// Lifecycle is the part of the lifecycle manager the HTTP layer uses.
type Lifecycle interface {
	SetStatus(ctx context.Context, id string, to model.Status, note *string, actor service.Actor) (*model.Reservation, error)
	Get(ctx context.Context, id string, actor service.Actor) (*model.Reservation, error)
	List(ctx context.Context, f repository.ReservationFilter, actor service.Actor) ([]model.Reservation, error)
}

// ReservationHandler serves the /v1 reservation routes.  JWT
// authentication has already run; the actor comes from the context.
type ReservationHandler struct {
	admission Admission
	lifecycle Lifecycle
}

// NewReservationHandler panics on nil dependencies.
func NewReservationHandler(a Admission, l Lifecycle) *ReservationHandler {
	if a == nil || l == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{admission: a, lifecycle: l}
}

type submitBody struct {
	FacilityID  string `json:"facility_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Quantity    int    `json:"quantity"`
	RequesterID string `json:"requester_id"`
	Purpose     string `json:"purpose"`

	// older clients
	Start string `json:"start"`
	End   string `json:"end"`
}

func (b submitBody) window() (model.Window, error) {
	start, end := b.StartTime, b.EndTime
	if start == "" && end == "" {
		start, end = b.Start, b.End
	}
	return model.ParseWindow(start, end)
}

// requester resolves who the reservation is for.  Residents may only book
// for themselves; administrators may book on behalf of a named resident.
func (b submitBody) requester(actor service.Actor) (string, error) {
	id := strings.TrimSpace(b.RequesterID)
	if id == "" || id == actor.ID {
		return actor.ID, nil
	}
	if !actor.IsAdmin() {
		return "", apperror.Forbidden("requester_id does not match the authenticated user")
	}
	return id, nil
}

// Submit handles POST /v1/reservations.
func (h *ReservationHandler) Submit(c echo.Context) error {
	var body submitBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(body.FacilityID) == "" {
		return badRequest(c, "facility_id is required")
	}
	date, err := model.ParseDate(body.Date)
	if err != nil {
		return respondError(c, apperror.InvalidWindow(err))
	}
	win, err := body.window()
	if err != nil {
		return respondError(c, apperror.InvalidWindow(err))
	}
	requester, err := body.requester(middleware.Actor(c))
	if err != nil {
		return respondError(c, err)
	}

	r, err := h.admission.Submit(c.Request().Context(), service.SubmitRequest{
		FacilityID:  strings.TrimSpace(body.FacilityID),
		Date:        date,
		Window:      win,
		Quantity:    body.Quantity,
		RequesterID: requester,
		Purpose:     body.Purpose,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

type statusBody struct {
	Status    string  `json:"status"`
	AdminNote *string `json:"admin_note"`
}

// SetStatus handles PATCH /v1/reservations/:id/status.
func (h *ReservationHandler) SetStatus(c echo.Context) error {
	var body statusBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	to, ok := model.ParseStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
	if !ok {
		return badRequest(c, "status must be one of PENDING, APPROVED, REJECTED, CANCELLED")
	}
	r, err := h.lifecycle.SetStatus(c.Request().Context(), c.Param("id"), to, body.AdminNote, middleware.Actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Cancel handles POST /v1/reservations/:id/cancel for the requester or an
// administrator.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	r, err := h.lifecycle.SetStatus(c.Request().Context(), c.Param("id"), model.StatusCancelled, nil, middleware.Actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	r, err := h.lifecycle.Get(c.Request().Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// List handles GET /v1/reservations.
func (h *ReservationHandler) List(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	out, err := h.lifecycle.List(c.Request().Context(), f, middleware.Actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "limit": limitOrDefault(f.Limit), "offset": f.Offset})
}

// Availability handles GET /v1/facilities/:id/availability?date=.
func (h *ReservationHandler) Availability(c echo.Context) error {
	date, err := model.ParseDate(c.QueryParam("date"))
	if err != nil {
		return respondError(c, apperror.InvalidWindow(err))
	}
	av, err := h.admission.Availability(c.Request().Context(), c.Param("id"), date)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, av)
}

func parseFilter(c echo.Context) (repository.ReservationFilter, error) {
	f := repository.ReservationFilter{
		FacilityID:  c.QueryParam("facility_id"),
		RequesterID: c.QueryParam("requester_id"),
	}
	if s := c.QueryParam("date"); s != "" {
		d, err := model.ParseDate(s)
		if err != nil {
			return f, errors.New("date must be YYYY-MM-DD")
		}
		f.Date = d
	}
	if s := c.QueryParam("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st, ok := model.ParseStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !ok {
				return f, errors.New("unknown status " + strconv.Quote(part))
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	var err error
	if f.Limit, err = intParam(c, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(c, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(c echo.Context, name string) (int, error) {
	s := c.QueryParam(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func limitOrDefault(n int) int {
	if n <= 0 || n > 500 {
		return repository.DefaultListLimit
	}
	return n
}

// AvailabilityDay keys the availability route for the listing cache.
func AvailabilityDay(c echo.Context) (model.DayKey, bool) {
	d, err := model.ParseDate(c.QueryParam("date"))
	if err != nil || c.Param("id") == "" {
		return model.DayKey{}, false
	}
	return model.DayKey{FacilityID: c.Param("id"), Date: d}, true
}

// ListingDay keys GET /v1/reservations when it is filtered to one
// facility and date.
func ListingDay(c echo.Context) (model.DayKey, bool) {
	fid := c.QueryParam("facility_id")
	d, err := model.ParseDate(c.QueryParam("date"))
	if err != nil || fid == "" {
		return model.DayKey{}, false
	}
	return model.DayKey{FacilityID: fid, Date: d}, true
}
