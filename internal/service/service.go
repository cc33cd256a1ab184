// Package service holds the reservation use cases: admission of new
// requests against facility capacity and the status lifecycle that
// follows.  Handlers translate HTTP into these calls; stores, locks,
// caches and the event publisher are injected through Options.
package service

import (
	"context"
	"time"

	"github.com/neighborhood/facility-booking/internal/lock"
	"github.com/neighborhood/facility-booking/internal/logging"
	"github.com/neighborhood/facility-booking/internal/model"
	"github.com/neighborhood/facility-booking/internal/queue"
)

// EventPublisher delivers reservation events.  Delivery is best-effort and
// Publish should hand the event off rather than wait on the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// CacheInvalidator drops cached reads for a (facility, date).
type CacheInvalidator interface {
	Invalidate(ctx context.Context, key model.DayKey) error
}

// Role is the caller's role as carried by the access token.
type Role string

const (
	RoleResident Role = "RESIDENT"
	RoleAdmin    Role = "ADMIN"
)

// Actor is the authenticated caller of a use case.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor may act on any reservation.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Options wires the collaborators shared by the use cases.  Zero values
// select in-process defaults.
type Options struct {
	Locker         lock.Locker
	Clock          Clock
	Location       *time.Location // decides which day is "today"
	AllowPastDates bool
	Events         EventPublisher
	Cache          CacheInvalidator
}

func (o Options) withDefaults() Options {
	if o.Locker == nil {
		o.Locker = lock.NewKeyedMutex()
	}
	if o.Clock == nil {
		o.Clock = RealClock{}
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Events == nil {
		o.Events = nopEvents{}
	}
	if o.Cache == nil {
		o.Cache = nopCache{}
	}
	return o
}

type nopEvents struct{}

func (nopEvents) Publish(context.Context, queue.ReservationEvent) error { return nil }

type nopCache struct{}

func (nopCache) Invalidate(context.Context, model.DayKey) error { return nil }

// sideEffectTimeout bounds cache invalidation and publishing after a commit.
const sideEffectTimeout = 2 * time.Second

// afterWrite runs once a write has committed.  Failures are logged only:
// the write already happened and the caller must see it as such.
func (o Options) afterWrite(ctx context.Context, key model.DayKey, ev queue.ReservationEvent) {
	logger := logging.FromContext(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := o.Cache.Invalidate(ctx, key); err != nil {
		logger.Warn().Err(err).Str("key", key.String()).Msg("listing cache invalidation failed")
	}
	if err := o.Events.Publish(ctx, ev); err != nil {
		logger.Warn().Err(err).
			Str("event", string(ev.Type)).
			Str("reservation_id", ev.ReservationID).
			Msg("reservation event not published")
	}
}
