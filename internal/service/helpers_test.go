package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neighborhood/facility-booking/internal/model"
	"github.com/neighborhood/facility-booking/internal/queue"
	"github.com/neighborhood/facility-booking/internal/repository"
)

var (
	testNow  = time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)
	testDate = model.Date{Year: 2030, Month: time.March, Day: 4}
	resident = Actor{ID: "u1", Role: RoleResident}
	neighbor = Actor{ID: "u2", Role: RoleResident}
	admin    = Actor{ID: "a1", Role: RoleAdmin}
)

func window(t *testing.T, start, end string) model.Window {
	t.Helper()
	w, err := model.ParseWindow(start, end)
	require.NoError(t, err)
	return w
}

func newStore(facilities ...model.Facility) *repository.MemoryStore {
	s := repository.NewMemoryStore()
	for _, f := range facilities {
		s.PutFacility(f)
	}
	return s
}

func facility(id string, capacity int) model.Facility {
	return model.Facility{ID: id, Name: id, Capacity: capacity, Status: model.FacilityActive}
}

func options() Options {
	return Options{Clock: FixedClock(testNow)}
}

func request(t *testing.T, facilityID, start, end string, qty int, who Actor) SubmitRequest {
	return SubmitRequest{
		FacilityID:  facilityID,
		Date:        testDate,
		Window:      window(t, start, end),
		Quantity:    qty,
		RequesterID: who.ID,
	}
}

// slowStore widens the window between reading the ledger and inserting.
type slowStore struct {
	*repository.MemoryStore
	delay time.Duration
}

func (s slowStore) Admit(ctx context.Context, key model.DayKey, decide repository.AdmitFunc) (*model.Reservation, error) {
	return s.MemoryStore.Admit(ctx, key, func(active []model.Reservation) (*model.Reservation, error) {
		time.Sleep(s.delay)
		return decide(active)
	})
}

var errBackendDown = errors.New("backend down")

// flakyStore fails the first n admissions before touching the ledger.
type flakyStore struct {
	*repository.MemoryStore
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) Admit(ctx context.Context, key model.DayKey, decide repository.AdmitFunc) (*model.Reservation, error) {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return nil, errBackendDown
	}
	return s.MemoryStore.Admit(ctx, key, decide)
}

// panickyStore panics inside the first admission's decision, while the
// store still holds its per-key scope.
type panickyStore struct {
	*repository.MemoryStore
	once sync.Once
}

func (s *panickyStore) Admit(ctx context.Context, key model.DayKey, decide repository.AdmitFunc) (*model.Reservation, error) {
	wrapped := decide
	s.once.Do(func() {
		wrapped = func([]model.Reservation) (*model.Reservation, error) {
			panic("decision blew up")
		}
	})
	return s.MemoryStore.Admit(ctx, key, wrapped)
}

// brokenDirectory fails every lookup.
type brokenDirectory struct{}

func (brokenDirectory) Facility(context.Context, string) (*model.Facility, error) {
	return nil, errBackendDown
}

// noLock lets the store's own atomic scope be the only serialization.
type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type busyLock struct{}

func (busyLock) Lock(context.Context, string) (func(), error) { return nil, errors.New("lock busy") }

type eventsMock struct{ mock.Mock }

func (m *eventsMock) Publish(ctx context.Context, ev queue.ReservationEvent) error {
	return m.Called(ctx, ev).Error(0)
}

type cacheMock struct{ mock.Mock }

func (m *cacheMock) Invalidate(ctx context.Context, key model.DayKey) error {
	return m.Called(ctx, key).Error(0)
}
