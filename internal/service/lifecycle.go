package service

import (
	"context"
	"errors"

	"github.com/neighborhood/facility-booking/internal/apperror"
	"github.com/neighborhood/facility-booking/internal/logging"
	"github.com/neighborhood/facility-booking/internal/model"
	"github.com/neighborhood/facility-booking/internal/queue"
	"github.com/neighborhood/facility-booking/internal/repository"
)

// LifecycleManager moves reservations between statuses and serves reads.
// Status changes never re-run the capacity sweep: approving only confirms
// capacity that PENDING already holds, and the other moves release it.
type LifecycleManager struct {
	store repository.ReservationStore
	opts  Options
}

// NewLifecycleManager wires the manager to its store.
func NewLifecycleManager(store repository.ReservationStore, opts Options) *LifecycleManager {
	return &LifecycleManager{store: store, opts: opts.withDefaults()}
}

// SetStatus applies to to reservation id on behalf of actor.  Approving and
// rejecting are administrator actions; the requester may also cancel.
func (m *LifecycleManager) SetStatus(ctx context.Context, id string, to model.Status, note *string, actor Actor) (*model.Reservation, error) {
	cur, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch to {
	case model.StatusCancelled:
		if !actor.IsAdmin() && actor.ID != cur.RequesterID {
			return nil, apperror.Forbidden("only the requester or an administrator may cancel a reservation")
		}
	default:
		if !actor.IsAdmin() {
			return nil, apperror.Forbidden("only an administrator may change this status")
		}
	}
	if !actor.IsAdmin() {
		note = nil
	}
	if !model.CanTransition(cur.Status, to) {
		return nil, apperror.InvalidTransition(cur.Status, to)
	}

	updated, err := m.store.Transition(ctx, id, model.SourcesFor(to), to, note, m.opts.Clock.Now())
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		// Lost a race with another status change.
		from := cur.Status
		if updated != nil {
			from = updated.Status
		}
		return nil, apperror.InvalidTransition(from, to)
	case errors.Is(err, repository.ErrReservationNotFound):
		return nil, apperror.NotFound("reservation", id)
	case err != nil:
		return nil, apperror.Storage("update reservation status", err)
	}

	logging.FromContext(ctx).Info().
		Str("reservation_id", id).
		Str("from", string(cur.Status)).
		Str("to", string(to)).
		Str("actor_id", actor.ID).
		Msg("reservation status changed")
	m.opts.afterWrite(ctx, updated.Key(),
		queue.NewReservationEvent(queue.EventStatusChanged, *updated, cur.Status, actor.ID, updated.UpdatedAt))
	return updated, nil
}

// Get returns a reservation.  Residents only see their own; someone else's
// reservation is reported as not found.
func (m *LifecycleManager) Get(ctx context.Context, id string, actor Actor) (*model.Reservation, error) {
	r, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && r.RequesterID != actor.ID {
		return nil, apperror.NotFound("reservation", id)
	}
	return r, nil
}

// List returns reservations matching f.  For residents the requester filter
// is forced to themselves.
func (m *LifecycleManager) List(ctx context.Context, f repository.ReservationFilter, actor Actor) ([]model.Reservation, error) {
	if !actor.IsAdmin() {
		f.RequesterID = actor.ID
	}
	out, err := m.store.List(ctx, f)
	if err != nil {
		return nil, apperror.Storage("list reservations", err)
	}
	return out, nil
}

func (m *LifecycleManager) get(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := m.store.Get(ctx, id)
	switch {
	case errors.Is(err, repository.ErrReservationNotFound):
		return nil, apperror.NotFound("reservation", id)
	case err != nil:
		return nil, apperror.Storage("load reservation", err)
	}
	return r, nil
}
