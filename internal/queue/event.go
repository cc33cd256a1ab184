// Package queue carries reservation events over RabbitMQ: the payload
// published after every successful write, the publisher used by the API
// and the audit consumer that turns events into log lines.
package queue

import (
	"time"

	"github.com/neighborhood/facility-booking/internal/model"
)

// ReservationEventsQueue is the durable queue every event is routed to.
const ReservationEventsQueue = "reservation.events"

// EventType names what happened to the reservation.
type EventType string

const (
	EventSubmitted     EventType = "reservation.submitted"
	EventStatusChanged EventType = "reservation.status_changed"
)

// ReservationEvent is published after a reservation is admitted or changes
// status.  It carries enough for downstream consumers to notify or audit
// without querying the primary database.
type ReservationEvent struct {
	Type           EventType `json:"type"`
	ReservationID  string    `json:"reservation_id"`
	FacilityID     string    `json:"facility_id"`
	Date           string    `json:"date"`
	Start          string    `json:"start"`
	End            string    `json:"end"`
	Quantity       int       `json:"quantity"`
	RequesterID    string    `json:"requester_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	ActorID        string    `json:"actor_id"`
	AdminNote      string    `json:"admin_note,omitempty"`
	OccurredAt     string    `json:"occurred_at"`
}

// NewReservationEvent builds an event from the reservation as stored after
// the write.  prev is empty for submissions.
func NewReservationEvent(typ EventType, r model.Reservation, prev model.Status, actorID string, at time.Time) ReservationEvent {
	ev := ReservationEvent{
		Type:           typ,
		ReservationID:  r.ID,
		FacilityID:     r.FacilityID,
		Date:           r.Date.String(),
		Start:          r.Window.Start.String(),
		End:            r.Window.End.String(),
		Quantity:       r.Quantity,
		RequesterID:    r.RequesterID,
		Status:         string(r.Status),
		PreviousStatus: string(prev),
		ActorID:        actorID,
		OccurredAt:     at.UTC().Format(time.RFC3339),
	}
	if r.AdminNote != nil {
		ev.AdminNote = *r.AdminNote
	}
	return ev
}
