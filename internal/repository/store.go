package repository

import (
	"context"
	"time"

	"github.com/neighborhood/facility-booking/internal/model"
)

// AdmitFunc decides, given the active reservations of a day, which
// reservation to insert.  Returning an error aborts the admission without
// writing anything.
type AdmitFunc func(active []model.Reservation) (*model.Reservation, error)

// ReservationStore is the durable reservation ledger.
type ReservationStore interface {
	// Admit runs decide against the active ledger of key and inserts the
	// reservation it returns.  Reading the ledger and inserting happen in one
	// atomic scope that excludes every other Admit on the same key.
	Admit(ctx context.Context, key model.DayKey, decide AdmitFunc) (*model.Reservation, error)
	// Get returns a reservation by id or ErrReservationNotFound.
	Get(ctx context.Context, id string) (*model.Reservation, error)
	// Transition atomically moves a reservation whose status is in from to
	// status to.  It returns ErrReservationNotFound, or ErrStaleStatus with
	// the current row when the status did not match.
	Transition(ctx context.Context, id string, from []model.Status, to model.Status, note *string, at time.Time) (*model.Reservation, error)
	// ActiveForDay returns the PENDING and APPROVED reservations of key.
	ActiveForDay(ctx context.Context, key model.DayKey) ([]model.Reservation, error)
	// List returns reservations matching f ordered by day, start and creation.
	List(ctx context.Context, f ReservationFilter) ([]model.Reservation, error)
}

// FacilityDirectory resolves facilities maintained by the catalog.
type FacilityDirectory interface {
	// Facility returns the facility or ErrFacilityNotFound.
	Facility(ctx context.Context, id string) (*model.Facility, error)
}

// ReservationFilter narrows List.  Zero values mean "any".
type ReservationFilter struct {
	FacilityID  string
	Date        model.Date
	RequesterID string
	Statuses    []model.Status
	Limit       int
	Offset      int
}

// DefaultListLimit caps List when the filter does not set a limit.
const DefaultListLimit = 100

func (f ReservationFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return DefaultListLimit
	}
	return f.Limit
}

func activeDemands(rs []model.Reservation) []model.Reservation {
	out := rs[:0:0]
	for _, r := range rs {
		if r.Status.Active() {
			out = append(out, r)
		}
	}
	return out
}
