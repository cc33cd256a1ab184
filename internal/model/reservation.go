package model

import "time"

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// ActiveStatuses are the states that consume facility capacity.
var ActiveStatuses = []Status{StatusPending, StatusApproved}

// transitions lists, for every target state, the states it may be reached from.
var transitions = map[Status][]Status{
	StatusApproved:  {StatusPending},
	StatusRejected:  {StatusPending},
	StatusCancelled: {StatusPending, StatusApproved},
}

// ParseStatus validates a status string coming from a client.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return st, true
	}
	return "", false
}

// Active reports whether the status counts toward capacity.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// SourcesFor returns the states from which to is reachable.  It returns nil
// when nothing may transition into to (PENDING is only ever set on creation).
func SourcesFor(to Status) []Status {
	return transitions[to]
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Reservation is a request to use Quantity units of a facility during
// Window on Date.
//
// Fields:
//
//	ID          – opaque identifier (UUID), generated at admission.
//	FacilityID  – facility being reserved.
//	Date        – calendar day of the reservation.
//	Window      – half-open [start, end) on Date.
//	Quantity    – units consumed while active.
//	RequesterID – resident who submitted the request.
//	Purpose     – free text supplied by the requester.
//	Status      – PENDING, APPROVED, REJECTED or CANCELLED.
//	AdminNote   – optional note left by an administrator.
//	CreatedAt   – admission time.
//	UpdatedAt   – last status change.
type Reservation struct {
	ID          string    `json:"id"`
	FacilityID  string    `json:"facility_id"`
	Date        Date      `json:"date"`
	Window      Window    `json:"window"`
	Quantity    int       `json:"quantity"`
	RequesterID string    `json:"requester_id"`
	Purpose     string    `json:"purpose"`
	Status      Status    `json:"status"`
	AdminNote   *string   `json:"admin_note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key returns the admission key this reservation belongs to.
func (r Reservation) Key() DayKey {
	return DayKey{FacilityID: r.FacilityID, Date: r.Date}
}

// DayKey identifies the ledger a reservation is admitted against.  All
// admission decisions for one key are serialized; different keys are
// independent.
type DayKey struct {
	FacilityID string
	Date       Date
}

// String returns a stable name usable as a lock or cache key.
func (k DayKey) String() string {
	return "facility:" + k.FacilityID + ":" + k.Date.String()
}
