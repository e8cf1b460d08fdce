package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

var eventCols = []string{"id", "title", "description", "status", "starts_at", "ends_at", "total_rows",
	"total_cols", "total_seats", "reserved_seats", "paid_amount", "created_at", "updated_at"}

func draftEvent(now time.Time) *model.Event {
	return &model.Event{
		Title:      "Spring Gala",
		Status:     model.EventDraft,
		StartsAt:   now.Add(48 * time.Hour),
		EndsAt:     now.Add(50 * time.Hour),
		TotalRows:  2,
		TotalCols:  2,
		TotalSeats: 4,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestEventRepo_CreateWithSeats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("commits event and grid", func(t *testing.T) {
		db, mock := newMock(t)
		e := draftEvent(now)
		seats := model.GenerateGrid(0, 2, 2, model.DefaultSeatPrice)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO events`).
			WithArgs("Spring Gala", nil, "DRAFT", e.StartsAt, e.EndsAt, 2, 2, 4, 0, int64(0), now, now).
			WillReturnResult(sqlmock.NewResult(42, 1))
		mock.ExpectExec(`INSERT INTO seats .* VALUES \(.*\),\(.*\),\(.*\),\(.*\)$`).
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectCommit()

		require.NoError(t, NewEventRepo(db).CreateWithSeats(ctx, e, seats))
		assert.Equal(t, uint64(42), e.ID)
		for _, s := range seats {
			assert.Equal(t, uint64(42), s.EventID)
			assert.Equal(t, now, s.CreatedAt)
		}
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when seats fail", func(t *testing.T) {
		db, mock := newMock(t)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO events`).WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectExec(`INSERT INTO seats`).WillReturnError(boom)
		mock.ExpectRollback()

		err := NewEventRepo(db).CreateWithSeats(ctx, draftEvent(now), model.GenerateGrid(0, 2, 2, 100))
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEventRepo_GetByID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`SELECT .* FROM events WHERE id = \?`).
			WithArgs(uint64(3)).
			WillReturnRows(sqlmock.NewRows(eventCols).
				AddRow(3, "Gala", nil, "PUBLISHED", now, now.Add(time.Hour), 2, 3, 6, 2, 10000, now, now))

		e, err := NewEventRepo(db).GetByID(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, model.EventPublished, e.Status)
		assert.Equal(t, "", e.Description)
		assert.Equal(t, 2, e.ReservedSeats)
		assert.Equal(t, int64(10000), e.PaidAmount)
		assert.Equal(t, 4, e.AvailableSeats())
	})
	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`FROM events WHERE id = \?`).WillReturnError(sql.ErrNoRows)

		_, err := NewEventRepo(db).GetByID(ctx, 404)
		require.ErrorIs(t, err, model.ErrEventNotFound)
	})
}

func TestEventRepo_Update_ExpectedStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"status unchanged", 1, true},
		{"status moved underneath", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			e := draftEvent(now)
			e.ID = 9
			e.Status = model.EventPublished

			mock.ExpectExec(`UPDATE events SET .* WHERE id = \? AND status = \?`).
				WithArgs("Spring Gala", nil, "PUBLISHED", e.StartsAt, e.EndsAt, now, uint64(9), "DRAFT").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := NewEventRepo(db).Update(context.Background(), e, model.EventDraft)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepo_UpdateSummary_Missing(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE events SET reserved_seats = \?`).
		WithArgs(1, int64(0), now, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM events WHERE id = \?`).
		WithArgs(uint64(5)).
		WillReturnError(sql.ErrNoRows)

	err := NewEventRepo(db).UpdateSummary(context.Background(), 5, 1, 0, now)
	require.ErrorIs(t, err, model.ErrEventNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_UpdateSummary_Errors(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("rows affected fails", func(t *testing.T) {
		db, mock := newMock(t)
		boom := errors.New("driver lost result")
		mock.ExpectExec(`UPDATE events SET reserved_seats = \?`).
			WillReturnResult(sqlmock.NewErrorResult(boom))

		err := NewEventRepo(db).UpdateSummary(context.Background(), 5, 1, 0, now)
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unchanged values on existing event", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`UPDATE events SET reserved_seats = \?`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM events WHERE id = \?`).
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		require.NoError(t, NewEventRepo(db).UpdateSummary(context.Background(), 5, 1, 0, now))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEventRepo_GetByID_UnknownStatus(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM events WHERE id = \?`).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(3, "Gala", nil, "ARCHIVED", now, now, 1, 1, 1, 0, 0, now, now))

	_, err := NewEventRepo(db).GetByID(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown status "ARCHIVED"`)
}

func TestEventRepo_Search(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("keyword and paging", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE LOWER\(title\) LIKE \?`).
			WithArgs(`%50\% off%`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
		mock.ExpectQuery(`ORDER BY created_at DESC, id DESC LIMIT \? OFFSET \?`).
			WithArgs(`%50\% off%`, 10, 20).
			WillReturnRows(sqlmock.NewRows(eventCols).
				AddRow(1, "50% OFF night", "d", "PUBLISHED", now, now, 1, 1, 1, 0, 0, now, now))

		items, total, err := NewEventRepo(db).Search(ctx, EventQuery{Keyword: " 50% OFF ", Page: 2, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(21), total)
		require.Len(t, items, 1)
		assert.Equal(t, "d", items[0].Description)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result skips data query", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE 1=1`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		items, total, err := NewEventRepo(db).Search(ctx, EventQuery{Page: 0, Size: 20})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, items)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
