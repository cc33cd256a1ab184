package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/neighborhood/facility-booking/internal/apperror"
	"github.com/neighborhood/facility-booking/internal/capacity"
	"github.com/neighborhood/facility-booking/internal/logging"
	"github.com/neighborhood/facility-booking/internal/model"
	"github.com/neighborhood/facility-booking/internal/queue"
	"github.com/neighborhood/facility-booking/internal/repository"
)

// SubmitRequest is a resident's request for facility capacity.
type SubmitRequest struct {
	FacilityID  string
	Date        model.Date
	Window      model.Window
	Quantity    int
	RequesterID string
	Purpose     string
}

// AdmissionController admits new reservations.  For a given facility and
// date, reading the active ledger, running the capacity sweep and inserting
// the new row happen as one exclusive step, so concurrent submissions can
// never jointly exceed capacity.
type AdmissionController struct {
	store      repository.ReservationStore
	facilities repository.FacilityDirectory
	opts       Options
	newID      func() string
}

// NewAdmissionController wires the controller to its store and directory.
func NewAdmissionController(store repository.ReservationStore, facilities repository.FacilityDirectory, opts Options) *AdmissionController {
	return &AdmissionController{
		store:      store,
		facilities: facilities,
		opts:       opts.withDefaults(),
		newID:      uuid.NewString,
	}
}

// Submit validates req and admits it as a PENDING reservation when the
// facility has room for it during the whole window.
func (a *AdmissionController) Submit(ctx context.Context, req SubmitRequest) (*model.Reservation, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}
	f, err := a.facility(ctx, req.FacilityID)
	if err != nil {
		return nil, err
	}
	if !f.Bookable() {
		return nil, apperror.FacilityUnavailable(f.ID, f.Status)
	}
	if req.Quantity > f.Capacity {
		return nil, apperror.InvalidQuantity(fmt.Sprintf("quantity %d exceeds facility capacity %d", req.Quantity, f.Capacity))
	}

	key := model.DayKey{FacilityID: f.ID, Date: req.Date}
	res, err := a.admit(ctx, key, f, req)
	if err != nil {
		return nil, err
	}
	a.opts.afterWrite(ctx, key, queue.NewReservationEvent(queue.EventSubmitted, *res, "", req.RequesterID, res.CreatedAt))
	return res, nil
}

func (a *AdmissionController) validate(req SubmitRequest) error {
	if req.Quantity <= 0 {
		return apperror.InvalidQuantity(fmt.Sprintf("quantity must be positive, got %d", req.Quantity))
	}
	if err := req.Window.Validate(); err != nil {
		return apperror.InvalidWindow(err)
	}
	if req.Date.IsZero() {
		return apperror.InvalidWindow(model.ErrInvalidDate)
	}
	if !a.opts.AllowPastDates {
		today := model.DateOf(a.opts.Clock.Now().In(a.opts.Location))
		if req.Date.Before(today) {
			return apperror.InvalidWindow(fmt.Errorf("%w: %s is before %s", model.ErrInvalidDate, req.Date, today))
		}
	}
	if req.RequesterID == "" {
		return apperror.Forbidden("requester is not identified")
	}
	return nil
}

func (a *AdmissionController) facility(ctx context.Context, id string) (*model.Facility, error) {
	f, err := a.facilities.Facility(ctx, id)
	switch {
	case errors.Is(err, repository.ErrFacilityNotFound):
		return nil, apperror.UnknownFacility(id)
	case err != nil:
		return nil, apperror.Storage("load facility", err)
	}
	return f, nil
}

// admit holds the admission scope for key while the store runs the sweep.
func (a *AdmissionController) admit(ctx context.Context, key model.DayKey, f *model.Facility, req SubmitRequest) (*model.Reservation, error) {
	logger := logging.FromContext(ctx).With().
		Str("facility_id", key.FacilityID).
		Str("date", key.Date.String()).
		Str("window", req.Window.String()).
		Int("quantity", req.Quantity).
		Logger()

	unlock, err := a.opts.Locker.Lock(ctx, key.String())
	if err != nil {
		logger.Error().Err(err).Msg("admission lock not acquired")
		return nil, apperror.Storage("acquire admission lock", err)
	}
	defer unlock()

	var verdict capacity.Result
	res, err := a.store.Admit(ctx, key, func(active []model.Reservation) (*model.Reservation, error) {
		verdict = capacity.Evaluate(f.Capacity, demands(active), capacity.Demand{Window: req.Window, Quantity: req.Quantity})
		if !verdict.Admissible {
			return nil, apperror.CapacityExceeded(apperror.CapacityDetail{
				Capacity:   verdict.Capacity,
				PeakUsage:  verdict.Peak,
				Available:  verdict.Available,
				PeakWindow: verdict.PeakWindow,
			})
		}
		now := a.opts.Clock.Now().UTC()
		return &model.Reservation{
			ID:          a.newID(),
			FacilityID:  key.FacilityID,
			Date:        key.Date,
			Window:      req.Window,
			Quantity:    req.Quantity,
			RequesterID: req.RequesterID,
			Purpose:     req.Purpose,
			Status:      model.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindCapacityExceeded {
			logger.Info().Int("peak", verdict.Peak).Int("available", verdict.Available).
				Str("decision", "rejected").Msg("admission decided")
			return nil, err
		}
		logger.Error().Err(err).Bool("lock_conflict", repository.IsLockConflict(err)).Msg("admission failed")
		return nil, apperror.Storage("admit reservation", err)
	}
	logger.Info().Int("peak", verdict.Peak).Str("reservation_id", res.ID).
		Str("decision", "admitted").Msg("admission decided")
	return res, nil
}

// Slot is one piece of the usage timeline.
type Slot struct {
	Start     model.TimeOfDay `json:"start"`
	End       model.TimeOfDay `json:"end"`
	Usage     int             `json:"usage"`
	Available int             `json:"available"`
}

// Availability is the live usage of a facility on one date.  Periods not
// covered by a slot are completely free.
type Availability struct {
	FacilityID string               `json:"facility_id"`
	Date       model.Date           `json:"date"`
	Status     model.FacilityStatus `json:"status"`
	Capacity   int                  `json:"capacity"`
	Peak       int                  `json:"peak"`
	Slots      []Slot               `json:"slots"`
}

// Availability reports capacity and the usage timeline of facilityID on
// date, computed from the active reservations.
func (a *AdmissionController) Availability(ctx context.Context, facilityID string, date model.Date) (*Availability, error) {
	if date.IsZero() {
		return nil, apperror.InvalidWindow(model.ErrInvalidDate)
	}
	f, err := a.facility(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	active, err := a.store.ActiveForDay(ctx, model.DayKey{FacilityID: f.ID, Date: date})
	if err != nil {
		return nil, apperror.Storage("load active reservations", err)
	}

	segs := capacity.Timeline(demands(active))
	out := &Availability{
		FacilityID: f.ID,
		Date:       date,
		Status:     f.Status,
		Capacity:   f.Capacity,
		Peak:       capacity.Peak(segs),
		Slots:      make([]Slot, 0, len(segs)),
	}
	for _, s := range segs {
		out.Slots = append(out.Slots, Slot{
			Start:     s.Window.Start,
			End:       s.Window.End,
			Usage:     s.Usage,
			Available: max(f.Capacity-s.Usage, 0),
		})
	}
	return out, nil
}

func demands(rs []model.Reservation) []capacity.Demand {
	out := make([]capacity.Demand, 0, len(rs))
	for _, r := range rs {
		if r.Status.Active() {
			out = append(out, capacity.Demand{Window: r.Window, Quantity: r.Quantity})
		}
	}
	return out
}
