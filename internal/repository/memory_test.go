package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighborhood/facility-booking/internal/model"
)

func TestMemoryStoreAdmitIsSerializedPerKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inside   int
		maxInner int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Admit(ctx, testKey(), func(active []model.Reservation) (*model.Reservation, error) {
				mu.Lock()
				inside++
				if inside > maxInner {
					maxInner = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return pending(string(rune('a'+i)), 540, 600, 1), nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxInner)
	active, err := s.ActiveForDay(ctx, testKey())
	require.NoError(t, err)
	assert.Len(t, active, 20)
}

func TestMemoryStoreTransitionAndActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Admit(ctx, testKey(), func([]model.Reservation) (*model.Reservation, error) {
		return pending("r1", 540, 600, 2), nil
	})
	require.NoError(t, err)

	at := time.Date(2030, 3, 2, 0, 0, 0, 0, time.UTC)
	note := "sorry"
	got, err := s.Transition(ctx, "r1", []model.Status{model.StatusPending}, model.StatusRejected, &note, at)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Equal(t, at, got.UpdatedAt)

	active, err := s.ActiveForDay(ctx, testKey())
	require.NoError(t, err)
	assert.Empty(t, active)

	cur, err := s.Transition(ctx, "r1", model.SourcesFor(model.StatusApproved), model.StatusApproved, nil, at)
	assert.ErrorIs(t, err, ErrStaleStatus)
	assert.Equal(t, model.StatusRejected, cur.Status)
	assert.Equal(t, "sorry", *cur.AdminNote)

	_, err = s.Transition(ctx, "missing", []model.Status{model.StatusPending}, model.StatusApproved, nil, at)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Admit(ctx, testKey(), func([]model.Reservation) (*model.Reservation, error) {
		return pending("r1", 540, 600, 2), nil
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	got.Status = model.StatusCancelled

	again, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, again.Status)
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i, w := range []model.Window{{Start: 600, End: 660}, {Start: 540, End: 600}, {Start: 720, End: 780}} {
		r := pending(string(rune('a'+i)), w.Start, w.End, 1)
		if i == 2 {
			r.RequesterID = "u2"
		}
		_, err := s.Admit(ctx, testKey(), func([]model.Reservation) (*model.Reservation, error) { return r, nil })
		require.NoError(t, err)
	}

	all, err := s.List(ctx, ReservationFilter{FacilityID: "gym"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "a", all[1].ID)

	mine, err := s.List(ctx, ReservationFilter{RequesterID: "u2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c", mine[0].ID)

	page, err := s.List(ctx, ReservationFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	none, err := s.List(ctx, ReservationFilter{Statuses: []model.Status{model.StatusCancelled}})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemoryStoreFacility(t *testing.T) {
	s := NewMemoryStore()
	s.PutFacility(model.Facility{ID: "gym", Capacity: 3, Status: model.FacilityActive})

	f, err := s.Facility(context.Background(), "gym")
	require.NoError(t, err)
	assert.True(t, f.Bookable())

	_, err = s.Facility(context.Background(), "pool")
	assert.ErrorIs(t, err, ErrFacilityNotFound)
}
