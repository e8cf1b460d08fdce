package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

// EventRepo provides data access to the events table.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, title, description, status, starts_at, ends_at, total_rows, total_cols,
	total_seats, reserved_seats, paid_amount, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent rehydrates an event from storage without re-running validation.
func scanEvent(rs rowScanner) (model.Event, error) {
	var (
		e      model.Event
		desc   sql.NullString
		status string
	)
	err := rs.Scan(&e.ID, &e.Title, &desc, &status, &e.StartsAt, &e.EndsAt, &e.TotalRows, &e.TotalCols,
		&e.TotalSeats, &e.ReservedSeats, &e.PaidAmount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return model.Event{}, err
	}
	e.Description = desc.String
	e.Status = model.EventStatus(status)
	if !e.Status.Valid() {
		return model.Event{}, fmt.Errorf("event %d: unknown status %q", e.ID, status)
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateWithSeats inserts the event and its full seat grid in one
// transaction.  On success e.ID and every seat's EventID are populated.
func (r *EventRepo) CreateWithSeats(ctx context.Context, e *model.Event, seats []model.Seat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create event: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (title, description, status, starts_at, ends_at, total_rows, total_cols,
		   total_seats, reserved_seats, paid_amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Title, nullString(e.Description), string(e.Status), e.StartsAt, e.EndsAt, e.TotalRows, e.TotalCols,
		e.TotalSeats, e.ReservedSeats, e.PaidAmount, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.ID = uint64(id)

	for i := range seats {
		seats[i].EventID = e.ID
		seats[i].CreatedAt = e.CreatedAt
		seats[i].UpdatedAt = e.CreatedAt
	}
	if err := insertSeatsTx(ctx, tx, seats); err != nil {
		return fmt.Errorf("insert seats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create event: %w", err)
	}
	committed = true
	return nil
}

// GetByID returns the event or model.ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Update persists the mutable fields of e, but only if the stored status is
// still expected.  It reports false when another writer changed the status
// first, so concurrent publish/cancel calls cannot both win.
func (r *EventRepo) Update(ctx context.Context, e *model.Event, expected model.EventStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, status = ?, starts_at = ?, ends_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		e.Title, nullString(e.Description), string(e.Status), e.StartsAt, e.EndsAt, e.UpdatedAt,
		e.ID, string(expected))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateSummary writes the reserved/paid projection.
func (r *EventRepo) UpdateSummary(ctx context.Context, id uint64, reserved int, paid int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET reserved_seats = ?, paid_amount = ?, updated_at = ? WHERE id = ?`,
		reserved, paid, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// zero rows also happens when values are unchanged; confirm existence
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrEventNotFound
	}
	return err
}

// EventQuery filters and paginates the public event list.  Page is zero-based.
type EventQuery struct {
	Keyword string
	Page    int
	Size    int
}

// Search lists events newest first, optionally filtered by a case-insensitive
// title keyword, and returns the total match count for pagination.
func (r *EventRepo) Search(ctx context.Context, q EventQuery) ([]model.Event, int64, error) {
	cond := "1=1"
	args := []any{}
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		cond = "LOWER(title) LIKE ?"
		args = append(args, "%"+escapeLike(strings.ToLower(kw))+"%")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Event{}, 0, nil
	}

	dataArgs := append(append([]any{}, args...), q.Size, q.Page*q.Size)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+cond+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Event, 0, q.Size)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
