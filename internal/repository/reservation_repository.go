package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/go-sql-driver/mysql"

	"github.com/neighborhood/facility-booking/internal/model"
)

// ReservationRepo is the MySQL ReservationStore.  Rows are keyed by id with
// a secondary index on (facility_id, day, status) for the admission working
// set.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo {
	return &ReservationRepo{db: db, dialect: goqu.Dialect("mysql")}
}

const reservationColumns = `id, facility_id, day, start_min, end_min, quantity, requester_id, purpose, status, admin_note, created_at, updated_at`

var reservationColumnList = []interface{}{
	"id", "facility_id", "day", "start_min", "end_min", "quantity",
	"requester_id", "purpose", "status", "admin_note", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		r          model.Reservation
		day        time.Time
		start, end int
		status     string
		note       sql.NullString
	)
	if err := s.Scan(&r.ID, &r.FacilityID, &day, &start, &end, &r.Quantity,
		&r.RequesterID, &r.Purpose, &status, &note, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Date = model.DateOf(day)
	r.Window = model.Window{Start: model.TimeOfDay(start), End: model.TimeOfDay(end)}
	r.Status = model.Status(status)
	if note.Valid {
		n := note.String
		r.AdminNote = &n
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func collect(ctx context.Context, q queryer, query string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const activeForDayQuery = `SELECT ` + reservationColumns + `
               FROM reservations
               WHERE facility_id = ? AND day = ? AND status IN ('PENDING', 'APPROVED')
               ORDER BY start_min, created_at`

// Admit serializes on the (facility_id, day) row of reservation_day_locks.
// The upsert takes that row's exclusive lock and holds it until commit or
// rollback, so a concurrent Admit on the same key blocks before reading
// the ledger while other keys proceed in parallel on their own rows.  The
// transaction is rolled back on every exit that does not reach Commit,
// panics included.
func (r *ReservationRepo) Admit(ctx context.Context, key model.DayKey, decide AdmitFunc) (*model.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin admission: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	day := key.Date.String()
	const lockQ = `INSERT INTO reservation_day_locks (facility_id, day) VALUES (?, ?)
               ON DUPLICATE KEY UPDATE day = day`
	if _, err := tx.ExecContext(ctx, lockQ, key.FacilityID, day); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	active, err := collect(ctx, tx, activeForDayQuery, key.FacilityID, day)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", key, err)
	}

	res, err := decide(active)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("admission decided nothing to insert")
	}

	const ins = `INSERT INTO reservations (` + reservationColumns + `)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins,
		res.ID, res.FacilityID, res.Date.String(), int(res.Window.Start), int(res.Window.End), res.Quantity,
		res.RequesterID, res.Purpose, string(res.Status), res.AdminNote, res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
	); err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}
	committed = true
	return res, nil
}

// Get loads a single reservation.
func (r *ReservationRepo) Get(ctx context.Context, id string) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	res, err := scanReservation(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return res, err
}

// Transition performs a conditional single-row update.  The status guard
// in the WHERE clause makes a concurrent, conflicting transition lose
// cleanly instead of overwriting: the loser sees zero affected rows and
// gets ErrStaleStatus with the row as it now stands.
func (r *ReservationRepo) Transition(ctx context.Context, id string, from []model.Status, to model.Status, note *string, at time.Time) (*model.Reservation, error) {
	if len(from) == 0 {
		cur, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return cur, ErrStaleStatus
	}
	var noteArg interface{}
	if note != nil {
		noteArg = *note
	}
	q, args, err := r.dialect.Update("reservations").
		Set(goqu.Record{
			"status":     string(to),
			"admin_note": goqu.L("COALESCE(?, admin_note)", noteArg),
			"updated_at": at.UTC(),
		}).
		Where(goqu.Ex{"id": id, "status": statusStrings(from)}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build transition: %w", err)
	}
	result, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return cur, ErrStaleStatus
	}
	return cur, nil
}

// ActiveForDay returns the capacity-consuming reservations of key.
func (r *ReservationRepo) ActiveForDay(ctx context.Context, key model.DayKey) ([]model.Reservation, error) {
	return collect(ctx, r.db, activeForDayQuery, key.FacilityID, key.Date.String())
}

// List builds the filter dynamically; only set fields become predicates.
func (r *ReservationRepo) List(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	where := goqu.Ex{}
	if f.FacilityID != "" {
		where["facility_id"] = f.FacilityID
	}
	if !f.Date.IsZero() {
		where["day"] = f.Date.String()
	}
	if f.RequesterID != "" {
		where["requester_id"] = f.RequesterID
	}
	if len(f.Statuses) > 0 {
		where["status"] = statusStrings(f.Statuses)
	}
	ds := r.dialect.From("reservations").
		Select(reservationColumnList...).
		Order(goqu.C("day").Asc(), goqu.C("start_min").Asc(), goqu.C("created_at").Asc()).
		Limit(uint(f.limit())).
		Offset(uint(max(f.Offset, 0)))
	if len(where) > 0 {
		ds = ds.Where(where)
	}
	q, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	return collect(ctx, r.db, q, args...)
}

func statusStrings(ss []model.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

// IsLockConflict reports whether err is an InnoDB deadlock (1213) or lock
// wait timeout (1205).  Both leave nothing written, so the request can be
// retried as is.
func IsLockConflict(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && (me.Number == 1213 || me.Number == 1205)
}
