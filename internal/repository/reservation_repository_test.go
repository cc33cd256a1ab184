package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighborhood/facility-booking/internal/model"
)

var cols = []string{"id", "facility_id", "day", "start_min", "end_min", "quantity",
	"requester_id", "purpose", "status", "admin_note", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*ReservationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReservationRepo(db), mock
}

func testKey() model.DayKey {
	return model.DayKey{FacilityID: "gym", Date: model.Date{Year: 2030, Month: time.March, Day: 4}}
}

func pending(id string, start, end model.TimeOfDay, qty int) *model.Reservation {
	at := time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC)
	return &model.Reservation{
		ID: id, FacilityID: "gym", Date: testKey().Date,
		Window:   model.Window{Start: start, End: end},
		Quantity: qty, RequesterID: "u1", Status: model.StatusPending,
		CreatedAt: at, UpdatedAt: at,
	}
}

func TestAdmitLocksReadsAndInserts(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	at := time.Date(2030, 3, 1, 7, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reservation_day_locks").
		WithArgs("gym", "2030-03-04").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM reservations").
		WithArgs("gym", "2030-03-04").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r0", "gym", day, 540, 600, 3, "u0", "", "APPROVED", nil, at, at))
	mock.ExpectExec("INSERT INTO reservations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen []model.Reservation
	got, err := repo.Admit(context.Background(), testKey(), func(active []model.Reservation) (*model.Reservation, error) {
		seen = active
		return pending("r1", 600, 660, 2), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
	require.Len(t, seen, 1)
	assert.Equal(t, model.Window{Start: 540, End: 600}, seen[0].Window)
	assert.Equal(t, testKey().Date, seen[0].Date)
	assert.Nil(t, seen[0].AdminNote)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitRollsBackWhenDecisionFails(t *testing.T) {
	repo, mock := newMockRepo(t)
	rejected := errors.New("no room")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reservation_day_locks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM reservations").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectRollback()

	_, err := repo.Admit(context.Background(), testKey(), func([]model.Reservation) (*model.Reservation, error) {
		return nil, rejected
	})
	assert.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitRollsBackWhenDecisionPanics(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reservation_day_locks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM reservations").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectRollback()

	func() {
		defer func() {
			assert.Equal(t, "sweep exploded", recover())
		}()
		_, _ = repo.Admit(context.Background(), testKey(), func([]model.Reservation) (*model.Reservation, error) {
			panic("sweep exploded")
		})
	}()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitRollsBackOnInsertFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reservation_day_locks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM reservations").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectExec("INSERT INTO reservations").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Admit(context.Background(), testKey(), func([]model.Reservation) (*model.Reservation, error) {
		return pending("r1", 600, 660, 1), nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM reservations WHERE id = ").WithArgs("nope").WillReturnRows(sqlmock.NewRows(cols))

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestTransitionReportsStaleStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	at := time.Date(2030, 3, 1, 7, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE `reservations` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM reservations WHERE id = ").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "gym", day, 540, 600, 1, "u1", "", "REJECTED", "full", at, at))

	cur, err := repo.Transition(context.Background(), "r1",
		[]model.Status{model.StatusPending}, model.StatusApproved, nil, at)
	assert.ErrorIs(t, err, ErrStaleStatus)
	require.NotNil(t, cur)
	assert.Equal(t, model.StatusRejected, cur.Status)
	require.NotNil(t, cur.AdminNote)
	assert.Equal(t, "full", *cur.AdminNote)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionApplies(t *testing.T) {
	repo, mock := newMockRepo(t)
	day := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	at := time.Date(2030, 3, 1, 7, 0, 0, 0, time.UTC)
	note := "enjoy"

	mock.ExpectExec("UPDATE `reservations` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM reservations WHERE id = ").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "gym", day, 540, 600, 1, "u1", "", "APPROVED", note, at, at))

	cur, err := repo.Transition(context.Background(), "r1",
		[]model.Status{model.StatusPending}, model.StatusApproved, &note, at)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, cur.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBuildsFilteredQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT .+ FROM `reservations` WHERE .+`facility_id` = \\?.+`status` IN \\(\\?, \\?\\).+ORDER BY `day` ASC.+LIMIT \\?").
		WillReturnRows(sqlmock.NewRows(cols))

	out, err := repo.List(context.Background(), ReservationFilter{
		FacilityID: "gym",
		Statuses:   []model.Status{model.StatusPending, model.StatusApproved},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacilityRepo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewFacilityRepo(db)

	mock.ExpectQuery("FROM facilities WHERE id = ").WithArgs("gym").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "status", "updated_at"}).
			AddRow("gym", "Gym", 10, "MAINTENANCE", time.Now()))
	mock.ExpectQuery("FROM facilities WHERE id = ").WithArgs("pool").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "status", "updated_at"}))

	f, err := repo.Facility(context.Background(), "gym")
	require.NoError(t, err)
	assert.Equal(t, 10, f.Capacity)
	assert.False(t, f.Bookable())

	_, err = repo.Facility(context.Background(), "pool")
	assert.ErrorIs(t, err, ErrFacilityNotFound)
}

func TestIsLockConflict(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	assert.True(t, IsLockConflict(fmt.Errorf("lock: %w", deadlock)))
	assert.True(t, IsLockConflict(&mysql.MySQLError{Number: 1205}))
	assert.False(t, IsLockConflict(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsLockConflict(errors.New("boom")))
}
