package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/neighborhood/facility-booking/internal/lock"
	"github.com/neighborhood/facility-booking/internal/model"
)

// MemoryStore keeps reservations and facilities in process memory.  It is
// used by STORE_BACKEND=memory and by the service tests.  Values are copied
// in and out so callers never share state with the store.
type MemoryStore struct {
	keys *lock.KeyedMutex

	mu         sync.RWMutex
	byID       map[string]*model.Reservation
	byDay      map[model.DayKey][]string
	facilities map[string]model.Facility
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:       lock.NewKeyedMutex(),
		byID:       make(map[string]*model.Reservation),
		byDay:      make(map[model.DayKey][]string),
		facilities: make(map[string]model.Facility),
	}
}

// PutFacility inserts or replaces a facility.
func (s *MemoryStore) PutFacility(f model.Facility) {
	s.mu.Lock()
	s.facilities[f.ID] = f
	s.mu.Unlock()
}

// Facility implements FacilityDirectory.
func (s *MemoryStore) Facility(_ context.Context, id string) (*model.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facilities[id]
	if !ok {
		return nil, ErrFacilityNotFound
	}
	return &f, nil
}

// Admit holds the key's mutex across read, decide and insert.
func (s *MemoryStore) Admit(ctx context.Context, key model.DayKey, decide AdmitFunc) (*model.Reservation, error) {
	unlock, err := s.keys.Lock(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	active, err := s.ActiveForDay(ctx, key)
	if err != nil {
		return nil, err
	}
	res, err := decide(active)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored := clone(res)
	s.mu.Lock()
	s.byID[stored.ID] = stored
	s.byDay[key] = append(s.byDay[key], stored.ID)
	s.mu.Unlock()
	return clone(stored), nil
}

// Get implements ReservationStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return clone(r), nil
}

// Transition implements ReservationStore.
func (s *MemoryStore) Transition(_ context.Context, id string, from []model.Status, to model.Status, note *string, at time.Time) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	allowed := false
	for _, st := range from {
		if r.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return clone(r), ErrStaleStatus
	}
	r.Status = to
	if note != nil {
		n := *note
		r.AdminNote = &n
	}
	r.UpdatedAt = at.UTC()
	return clone(r), nil
}

// ActiveForDay implements ReservationStore.
func (s *MemoryStore) ActiveForDay(_ context.Context, key model.DayKey) ([]model.Reservation, error) {
	s.mu.RLock()
	day := make([]model.Reservation, 0, len(s.byDay[key]))
	for _, id := range s.byDay[key] {
		day = append(day, *clone(s.byID[id]))
	}
	s.mu.RUnlock()
	out := activeDemands(day)
	sortReservations(out)
	return out, nil
}

// List implements ReservationStore.
func (s *MemoryStore) List(_ context.Context, f ReservationFilter) ([]model.Reservation, error) {
	s.mu.RLock()
	var out []model.Reservation
	for _, r := range s.byID {
		if matches(r, f) {
			out = append(out, *clone(r))
		}
	}
	s.mu.RUnlock()
	sortReservations(out)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []model.Reservation{}, nil
		}
		out = out[f.Offset:]
	}
	if n := f.limit(); len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []model.Reservation{}
	}
	return out, nil
}

func matches(r *model.Reservation, f ReservationFilter) bool {
	if f.FacilityID != "" && r.FacilityID != f.FacilityID {
		return false
	}
	if !f.Date.IsZero() && r.Date != f.Date {
		return false
	}
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if r.Status == st {
			return true
		}
	}
	return false
}

func sortReservations(rs []model.Reservation) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Window.Start != b.Window.Start {
			return a.Window.Start < b.Window.Start
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func clone(r *model.Reservation) *model.Reservation {
	c := *r
	if r.AdminNote != nil {
		n := *r.AdminNote
		c.AdminNote = &n
	}
	return &c
}
