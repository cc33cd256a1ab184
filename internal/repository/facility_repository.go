package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/neighborhood/facility-booking/internal/model"
)

// FacilityRepo reads the facilities table maintained by the catalog
// service.  It never writes.
type FacilityRepo struct {
	db *sql.DB
}

// NewFacilityRepo returns a FacilityRepo bound to the given database.
func NewFacilityRepo(db *sql.DB) *FacilityRepo { return &FacilityRepo{db: db} }

// Facility returns the facility with the given id or ErrFacilityNotFound.
func (r *FacilityRepo) Facility(ctx context.Context, id string) (*model.Facility, error) {
	const q = `SELECT id, name, capacity, status, updated_at FROM facilities WHERE id = ?`
	var (
		f      model.Facility
		status string
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(&f.ID, &f.Name, &f.Capacity, &status, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFacilityNotFound
	}
	if err != nil {
		return nil, err
	}
	f.Status = model.FacilityStatus(status)
	return &f, nil
}
