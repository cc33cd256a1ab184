package model

import "time"

// FacilityStatus mirrors facilities.status.  Only ACTIVE facilities accept
// new reservations; the other values are informational.
type FacilityStatus string

const (
	FacilityActive      FacilityStatus = "ACTIVE"
	FacilityMaintenance FacilityStatus = "MAINTENANCE"
	FacilityClosed      FacilityStatus = "CLOSED"
)

// Facility is a shared physical resource that residents can book.  The
// catalog (name, price, location) is owned by another service; this one
// only reads the fields needed for admission.
//
// Fields:
//
//	ID        – facilities.id
//	Name      – display name, used in events and logs.
//	Capacity  – number of identical units usable at the same instant.
//	Status    – bookable when ACTIVE.
//	UpdatedAt – last catalog change.
type Facility struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Capacity  int            `json:"capacity"`
	Status    FacilityStatus `json:"status"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Bookable reports whether new reservations may be admitted.
func (f Facility) Bookable() bool {
	return f.Status == FacilityActive && f.Capacity > 0
}
