package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
)

func TestCoordinator_TryHold_ConcurrentSingleWinner(t *testing.T) {
	const trials = 50
	for _, n := range []int{1, 2, 8, 32} {
		for trial := 0; trial < trials; trial++ {
			events, seats, seatID := seatFixture()
			c := NewCoordinator(seats, events, clock.NewManual(testNow), nil, nil)

			var (
				wg    sync.WaitGroup
				start = make(chan struct{})
				errs  = make([]error, n)
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, errs[i] = c.TryHold(context.Background(), seatID, time.Minute)
				}(i)
			}
			close(start)
			wg.Wait()

			wins := 0
			for _, err := range errs {
				if err == nil {
					wins++
					continue
				}
				require.ErrorIs(t, err, model.ErrSeatNotAvailable)
			}
			require.Equal(t, 1, wins, "n=%d trial=%d", n, trial)

			s, err := seats.GetByID(context.Background(), seatID)
			require.NoError(t, err)
			assert.Equal(t, model.SeatHold, s.Status)
		}
	}
}

func TestCoordinator_TryHold(t *testing.T) {
	ctx := context.Background()

	t.Run("sets expiry and announces", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		pub := &mockPublisher{}
		pub.On("Publish", mock.Anything, mock.MatchedBy(func(m queue.SeatSettled) bool {
			return m.SeatID == seatID && m.Transition == queue.TransitionHold && m.MessageID != ""
		})).Return(nil).Once()
		c := NewCoordinator(seats, events, clock.NewManual(testNow), pub, nil)

		s, err := c.TryHold(ctx, seatID, 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, model.SeatHold, s.Status)
		require.NotNil(t, s.HoldExpiresAt)
		assert.Equal(t, testNow.Add(5*time.Minute), *s.HoldExpiresAt)
		assert.Equal(t, uint32(2), s.Version)

		require.NoError(t, c.Wait(context.Background()))
		pub.AssertExpectations(t)
	})

	t.Run("publish failure does not fail the hold", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		pub := &mockPublisher{}
		pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
		c := NewCoordinator(seats, events, clock.NewManual(testNow), pub, nil)

		_, err := c.TryHold(ctx, seatID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, c.Wait(context.Background()))
		pub.AssertExpectations(t)
	})

	t.Run("second hold is not available", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		c := NewCoordinator(seats, events, clock.NewManual(testNow), nil, nil)

		_, err := c.TryHold(ctx, seatID, time.Minute)
		require.NoError(t, err)
		_, err = c.TryHold(ctx, seatID, time.Minute)
		require.ErrorIs(t, err, model.ErrSeatNotAvailable)
		de, ok := model.AsError(err)
		require.True(t, ok)
		assert.True(t, de.Code.IsSeatConflict())
	})

	t.Run("draft event rejects holds as event conflict", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		events.setStatus(1, model.EventDraft)
		c := NewCoordinator(seats, events, clock.NewManual(testNow), nil, nil)

		_, err := c.TryHold(ctx, seatID, time.Minute)
		require.ErrorIs(t, err, model.ErrInvalidEventStatus)
		de, _ := model.AsError(err)
		assert.False(t, de.Code.IsSeatConflict())
		assert.Contains(t, de.Message, "current status DRAFT, expected PUBLISHED")
	})

	t.Run("unknown seat", func(t *testing.T) {
		events, seats, _ := seatFixture()
		c := NewCoordinator(seats, events, clock.NewManual(testNow), nil, nil)

		_, err := c.TryHold(ctx, 999, time.Minute)
		require.ErrorIs(t, err, model.ErrSeatNotFound)
	})
}

// stuckPublisher ignores its context until release is closed.
type stuckPublisher struct {
	entered chan struct{}
	release chan struct{}
}

func (p *stuckPublisher) Publish(context.Context, queue.SeatSettled) error {
	p.entered <- struct{}{}
	<-p.release
	return nil
}

func TestCoordinator_WaitBoundedByContext(t *testing.T) {
	events, seats, seatID := seatFixture()
	pub := &stuckPublisher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := NewCoordinator(seats, events, clock.NewManual(testNow), pub, nil)

	_, err := c.TryHold(context.Background(), seatID, time.Minute)
	require.NoError(t, err)
	<-pub.entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	close(pub.release)
	require.NoError(t, c.Wait(context.Background()))
}

func TestCoordinator_Release_Idempotent(t *testing.T) {
	ctx := context.Background()
	events, seats, seatID := seatFixture()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(m queue.SeatSettled) bool {
		return m.Transition == queue.TransitionHold
	})).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(m queue.SeatSettled) bool {
		return m.Transition == queue.TransitionRelease
	})).Return(nil).Once()
	c := NewCoordinator(seats, events, clock.NewManual(testNow), pub, nil)

	_, err := c.TryHold(ctx, seatID, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		s, err := c.Release(ctx, seatID)
		require.NoError(t, err, "release #%d", i+1)
		assert.Equal(t, model.SeatAvailable, s.Status)
		assert.Nil(t, s.HoldExpiresAt)
	}

	require.NoError(t, c.Wait(context.Background()))
	pub.AssertExpectations(t)
}

func TestCoordinator_TerminalEventFreezesSeats(t *testing.T) {
	ctx := context.Background()
	for _, st := range []model.EventStatus{model.EventClosed, model.EventCanceled} {
		t.Run(string(st), func(t *testing.T) {
			events, seats, seatID := seatFixture()
			clk := clock.NewManual(testNow)
			c := NewCoordinator(seats, events, clk, nil, nil)

			held, err := c.TryHold(ctx, seatID, time.Minute)
			require.NoError(t, err)
			events.setStatus(1, st)

			_, err = c.Release(ctx, seatID)
			require.ErrorIs(t, err, model.ErrInvalidEventStatus)

			clk.Advance(2 * time.Minute)
			released, err := c.ReleaseExpired(ctx, held)
			require.NoError(t, err)
			assert.False(t, released)

			_, err = c.Sell(ctx, seatID)
			require.ErrorIs(t, err, model.ErrInvalidEventStatus)

			s, err := seats.GetByID(ctx, seatID)
			require.NoError(t, err)
			assert.Equal(t, model.SeatHold, s.Status)
			assert.Equal(t, held.Version, s.Version)
		})
	}
}

func TestCoordinator_Release_SoldSeatIsUntouched(t *testing.T) {
	ctx := context.Background()
	events, seats, seatID := seatFixture()
	c := NewCoordinator(seats, events, clock.NewManual(testNow), nil, nil)

	_, err := c.TryHold(ctx, seatID, time.Minute)
	require.NoError(t, err)
	_, err = c.Sell(ctx, seatID)
	require.NoError(t, err)

	s, err := c.Release(ctx, seatID)
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, s.Status)
}

func TestCoordinator_Sell(t *testing.T) {
	ctx := context.Background()

	t.Run("live hold sells", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		clk := clock.NewManual(testNow)
		c := NewCoordinator(seats, events, clk, nil, nil)

		_, err := c.TryHold(ctx, seatID, time.Minute)
		require.NoError(t, err)
		clk.Advance(30 * time.Second)

		s, err := c.Sell(ctx, seatID)
		require.NoError(t, err)
		assert.Equal(t, model.SeatSold, s.Status)
		assert.Nil(t, s.HoldExpiresAt)
	})

	t.Run("available seat cannot be sold", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		c := NewCoordinator(seats, events, clock.NewManual(testNow), nil, nil)

		_, err := c.Sell(ctx, seatID)
		require.ErrorIs(t, err, model.ErrInvalidSeatStatus)
	})

	t.Run("sold seat cannot be sold again", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		c := NewCoordinator(seats, events, clock.NewManual(testNow), nil, nil)

		_, err := c.TryHold(ctx, seatID, time.Minute)
		require.NoError(t, err)
		_, err = c.Sell(ctx, seatID)
		require.NoError(t, err)
		_, err = c.Sell(ctx, seatID)
		require.ErrorIs(t, err, model.ErrInvalidSeatStatus)
	})
}

// Hold for one minute, let two minutes pass: the stale hold must not sell and
// the sweeper path must reclaim it.
func TestCoordinator_ExpiredHold(t *testing.T) {
	ctx := context.Background()
	events, seats, seatID := seatFixture()
	clk := clock.NewManual(testNow)
	c := NewCoordinator(seats, events, clk, nil, nil)

	held, err := c.TryHold(ctx, seatID, time.Minute)
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	_, err = c.Sell(ctx, seatID)
	require.ErrorIs(t, err, model.ErrInvalidSeatStatus)
	assert.Contains(t, err.Error(), "HOLD (expired)")

	released, err := c.ReleaseExpired(ctx, held)
	require.NoError(t, err)
	assert.True(t, released)

	s, err := seats.GetByID(ctx, seatID)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, s.Status)
	assert.Nil(t, s.HoldExpiresAt)
}

func TestCoordinator_ReleaseExpired_StaleSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("not yet expired", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		c := NewCoordinator(seats, events, clock.NewManual(testNow), nil, nil)

		held, err := c.TryHold(ctx, seatID, time.Minute)
		require.NoError(t, err)
		ok, err := c.ReleaseExpired(ctx, held)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("sold after snapshot", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		clk := clock.NewManual(testNow)
		c := NewCoordinator(seats, events, clk, nil, nil)

		held, err := c.TryHold(ctx, seatID, time.Minute)
		require.NoError(t, err)
		_, err = c.Sell(ctx, seatID)
		require.NoError(t, err)
		clk.Advance(2 * time.Minute)

		ok, err := c.ReleaseExpired(ctx, held)
		require.NoError(t, err)
		assert.False(t, ok)
		s, _ := seats.GetByID(ctx, seatID)
		assert.Equal(t, model.SeatSold, s.Status)
	})

	t.Run("re-held after snapshot", func(t *testing.T) {
		events, seats, seatID := seatFixture()
		clk := clock.NewManual(testNow)
		c := NewCoordinator(seats, events, clk, nil, nil)

		old, err := c.TryHold(ctx, seatID, time.Minute)
		require.NoError(t, err)
		_, err = c.Release(ctx, seatID)
		require.NoError(t, err)
		_, err = c.TryHold(ctx, seatID, 10*time.Minute)
		require.NoError(t, err)
		clk.Advance(2 * time.Minute)

		ok, err := c.ReleaseExpired(ctx, old)
		require.NoError(t, err)
		assert.False(t, ok)
		s, _ := seats.GetByID(ctx, seatID)
		assert.Equal(t, model.SeatHold, s.Status)
	})
}

// A sell racing the sweeper on an expired hold: never both outcomes.
func TestCoordinator_SellRacesSweeper(t *testing.T) {
	ctx := context.Background()
	for trial := 0; trial < 100; trial++ {
		events, seats, seatID := seatFixture()
		clk := clock.NewManual(testNow)
		c := NewCoordinator(seats, events, clk, nil, nil)

		held, err := c.TryHold(ctx, seatID, time.Minute)
		require.NoError(t, err)
		clk.Advance(2 * time.Minute)

		var (
			wg       sync.WaitGroup
			sellErr  error
			released bool
		)
		wg.Add(2)
		go func() { defer wg.Done(); _, sellErr = c.Sell(ctx, seatID) }()
		go func() { defer wg.Done(); released, _ = c.ReleaseExpired(ctx, held) }()
		wg.Wait()

		sold := sellErr == nil
		require.False(t, sold && released, "trial %d", trial)
		require.True(t, sold || released, "trial %d", trial)

		s, _ := seats.GetByID(ctx, seatID)
		if sold {
			assert.Equal(t, model.SeatSold, s.Status)
		} else {
			assert.Equal(t, model.SeatAvailable, s.Status)
		}
	}
}
