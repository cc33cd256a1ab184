// Package repository defines error types that are reused across the
// stores.  These sentinel values allow the service layer to distinguish
// between a missing row, a lost status race and an infrastructure failure;
// anything that is not one of them is treated as a storage error.
package repository

import "errors"

// ErrReservationNotFound is returned when no reservation has the given id.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrFacilityNotFound is returned when the facility directory has no entry
// for the given id.
var ErrFacilityNotFound = errors.New("facility not found")

// ErrStaleStatus is returned by Transition when the reservation exists but
// its current status is not one of the allowed sources.  The current row is
// returned alongside it.
var ErrStaleStatus = errors.New("reservation status does not allow this transition")
