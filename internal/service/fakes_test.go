package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memSeatStore is a versioned in-memory seat table with the same swap
// semantics as the SQL store.
type memSeatStore struct {
	mu     sync.Mutex
	seats  map[uint64]model.Seat
	nextID uint64
}

func newMemSeatStore() *memSeatStore {
	return &memSeatStore{seats: map[uint64]model.Seat{}}
}

func (m *memSeatStore) insert(seats []model.Seat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range seats {
		m.nextID++
		seats[i].ID = m.nextID
		seats[i].Version = 1
		m.seats[m.nextID] = seats[i]
	}
}

func (m *memSeatStore) GetByID(_ context.Context, id uint64) (*model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[id]
	if !ok {
		return nil, model.ErrSeatNotFound
	}
	return &s, nil
}

func (m *memSeatStore) CompareAndSwap(_ context.Context, prev, next model.Seat) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.seats[prev.ID]
	if !ok || cur.Version != prev.Version {
		return false, nil
	}
	next.Version = cur.Version + 1
	m.seats[prev.ID] = next
	return true, nil
}

func (m *memSeatStore) ListByEvent(_ context.Context, eventID uint64, status model.SeatStatus) ([]model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Seat{}
	for _, s := range m.seats {
		if s.EventID == eventID && (status == "" || s.Status == status) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memSeatStore) Totals(_ context.Context, eventID uint64) (model.SeatTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t model.SeatTotals
	for _, s := range m.seats {
		if s.EventID != eventID || s.Status == model.SeatAvailable {
			continue
		}
		t.Reserved++
		if s.Status == model.SeatSold {
			t.Paid += s.Price
		}
	}
	return t, nil
}

// memEventStore stores events and hands generated seats to a memSeatStore.
type memEventStore struct {
	mu     sync.Mutex
	events map[uint64]model.Event
	seats  *memSeatStore
	nextID uint64

	// beforeUpdate runs inside Update before the status check, to simulate
	// a concurrent writer.
	beforeUpdate func(m *memEventStore, id uint64)
}

func newMemEventStore(seats *memSeatStore) *memEventStore {
	return &memEventStore{events: map[uint64]model.Event{}, seats: seats}
}

func (m *memEventStore) put(e model.Event) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.events[e.ID] = e
	return e.ID
}

func (m *memEventStore) setStatus(id uint64, st model.EventStatus) {
	e := m.events[id]
	e.Status = st
	m.events[id] = e
}

func (m *memEventStore) CreateWithSeats(_ context.Context, e *model.Event, seats []model.Seat) error {
	m.mu.Lock()
	m.nextID++
	e.ID = m.nextID
	m.events[e.ID] = *e
	m.mu.Unlock()
	for i := range seats {
		seats[i].EventID = e.ID
	}
	m.seats.insert(seats)
	return nil
}

func (m *memEventStore) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	return &e, nil
}

func (m *memEventStore) Update(_ context.Context, e *model.Event, expected model.EventStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeUpdate != nil {
		m.beforeUpdate(m, e.ID)
	}
	cur, ok := m.events[e.ID]
	if !ok || cur.Status != expected {
		return false, nil
	}
	m.events[e.ID] = *e
	return true, nil
}

func (m *memEventStore) UpdateSummary(_ context.Context, id uint64, reserved int, paid int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return model.ErrEventNotFound
	}
	e.ReservedSeats, e.PaidAmount, e.UpdatedAt = reserved, paid, at
	m.events[id] = e
	return nil
}

func (m *memEventStore) Search(_ context.Context, q repository.EventQuery) ([]model.Event, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Event{}
	for _, e := range m.events {
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, msg queue.SeatSettled) error {
	return m.Called(ctx, msg).Error(0)
}

func publishedEvent() model.Event {
	return model.Event{
		Title:      "Concert",
		Status:     model.EventPublished,
		StartsAt:   testNow.Add(24 * time.Hour),
		EndsAt:     testNow.Add(26 * time.Hour),
		TotalRows:  1,
		TotalCols:  1,
		TotalSeats: 1,
	}
}

// seatFixture builds a published event with one AVAILABLE seat.
func seatFixture() (*memEventStore, *memSeatStore, uint64) {
	seats := newMemSeatStore()
	events := newMemEventStore(seats)
	eventID := events.put(publishedEvent())
	grid := model.GenerateGrid(eventID, 1, 1, model.DefaultSeatPrice)
	seats.insert(grid)
	return events, seats, grid[0].ID
}
