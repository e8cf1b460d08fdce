package repository // repository defines data access for event seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"       // errors.Is for sql.ErrNoRows
	"strings"      // strings.Builder for the bulk insert
	"time"         // time for expiry comparisons

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// SeatRepo provides methods to work with seats in the database.  Seat status
// is only ever written through CompareAndSwap.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

const seatColumns = `id, event_id, row_no, col_no, seat_number, price, status, hold_expires_at, version, created_at, updated_at`

func scanSeat(rs rowScanner) (model.Seat, error) {
	var (
		s      model.Seat
		status string
		exp    sql.NullTime
	)
	if err := rs.Scan(&s.ID, &s.EventID, &s.Row, &s.Col, &s.Number, &s.Price, &status, &exp,
		&s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.Seat{}, err
	}
	s.Status = model.SeatStatus(status)
	if exp.Valid {
		t := exp.Time.UTC()
		s.HoldExpiresAt = &t
	}
	return s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// insertSeatsTx inserts all seats in a single multi-row statement within tx.
// Passing an empty slice has no effect.
func insertSeatsTx(ctx context.Context, tx *sql.Tx, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO seats (event_id, row_no, col_no, seat_number, price, status, version, created_at, updated_at) VALUES `)
	args := make([]any, 0, len(seats)*9)
	for i, s := range seats {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, s.EventID, s.Row, s.Col, s.Number, s.Price, string(s.Status), 1, s.CreatedAt, s.UpdatedAt)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// GetByID returns the seat or model.ErrSeatNotFound.
func (r *SeatRepo) GetByID(ctx context.Context, id uint64) (*model.Seat, error) {
	s, err := scanSeat(r.db.QueryRowContext(ctx, `SELECT `+seatColumns+` FROM seats WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSeatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByEvent returns an event's seats ordered by row then column.  An empty
// status returns every seat.
func (r *SeatRepo) ListByEvent(ctx context.Context, eventID uint64, status model.SeatStatus) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE event_id = ?`
	args := []any{eventID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY row_no ASC, col_no ASC`
	return r.query(ctx, q, args...)
}

// CompareAndSwap writes next's status and hold expiry only if the stored row
// still carries prev's version, bumping the version on success.  It is the
// atomic primitive behind hold, release and sell: of any number of
// concurrent writers that observed the same version, exactly one gets true.
func (r *SeatRepo) CompareAndSwap(ctx context.Context, prev, next model.Seat) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE seats SET status = ?, hold_expires_at = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(next.Status), nullTime(next.HoldExpiresAt), next.UpdatedAt, prev.ID, prev.Version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListExpiredHolds returns up to limit HOLD seats whose expiry is before now,
// oldest expiry first. Holds of CLOSED or CANCELED events are frozen and never
// listed.
func (r *SeatRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Seat, error) {
	return r.query(ctx,
		`SELECT `+seatColumns+` FROM seats
		 WHERE status = 'HOLD' AND hold_expires_at < ?
		   AND event_id IN (SELECT id FROM events WHERE status NOT IN ('CLOSED', 'CANCELED'))
		 ORDER BY hold_expires_at ASC
		 LIMIT ?`,
		now, limit)
}

// Totals recomputes the reservation projection of an event from its seats:
// reserved counts HOLD and SOLD seats, paid sums the price of SOLD seats.
func (r *SeatRepo) Totals(ctx context.Context, eventID uint64) (model.SeatTotals, error) {
	var t model.SeatTotals
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(status <> 'AVAILABLE'), 0),
		        COALESCE(SUM(CASE WHEN status = 'SOLD' THEN price ELSE 0 END), 0)
		 FROM seats WHERE event_id = ?`,
		eventID).Scan(&t.Reserved, &t.Paid)
	return t, err
}

func (r *SeatRepo) query(ctx context.Context, q string, args ...any) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Seat{}
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
