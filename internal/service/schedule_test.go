package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/stressless/internal/domain"
)

type fakeScheduleStore struct {
	records   map[int64]*domain.ScheduleRecord
	nextID    int64
	insertErr error
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{records: make(map[int64]*domain.ScheduleRecord)}
}

func (s *fakeScheduleStore) InsertQueued(_ context.Context, leaderID, collaboratorID int64, scheduledAt time.Time) (*domain.ScheduleRecord, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	s.nextID++
	rec := &domain.ScheduleRecord{
		ID:             s.nextID,
		LeaderID:       leaderID,
		CollaboratorID: collaboratorID,
		ScheduledAt:    scheduledAt,
		State:          domain.ScheduleStateQueued,
	}
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *fakeScheduleStore) FindByID(_ context.Context, id int64) (*domain.ScheduleRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeScheduleStore) CancelQueued(_ context.Context, id int64) error {
	rec, ok := s.records[id]
	if !ok || rec.State != domain.ScheduleStateQueued {
		return domain.ErrInvalidState
	}
	rec.State = domain.ScheduleStateCancelled
	return nil
}

func (s *fakeScheduleStore) ListUpcoming(_ context.Context, leaderID int64, from, to time.Time) ([]domain.ScheduleRecord, error) {
	var out []domain.ScheduleRecord
	for _, rec := range s.records {
		if rec.LeaderID == leaderID && rec.State == domain.ScheduleStateQueued &&
			!rec.ScheduledAt.Before(from) && !rec.ScheduledAt.After(to) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func newScheduleServiceAt(store ScheduleStore, now time.Time) *ScheduleService {
	svc := NewScheduleService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestQueueSlots(t *testing.T) {
	// 2026-03-10 09:00 in Lima is 14:00 UTC.
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	t.Run("queues one record per slot and collaborator", func(t *testing.T) {
		store := newFakeScheduleStore()
		svc := newScheduleServiceAt(store, now)

		n, err := svc.QueueSlots(context.Background(), 1, []int64{20, 21},
			[]Slot{
				{Date: day(2026, 3, 11), Time: "09:00"},
				{Date: day(2026, 3, 12), Time: "15:30"},
			}, "America/Lima")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Len(t, store.records, 4)

		// 09:00 Lima is 14:00 UTC year round.
		rec := store.records[1]
		assert.Equal(t, time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC), rec.ScheduledAt.UTC())
		assert.Equal(t, domain.ScheduleStateQueued, rec.State)
	})

	t.Run("accepts today and the seventh day", func(t *testing.T) {
		store := newFakeScheduleStore()
		svc := newScheduleServiceAt(store, now)

		_, err := svc.QueueSlots(context.Background(), 1, []int64{20},
			[]Slot{
				{Date: day(2026, 3, 10), Time: "23:00"},
				{Date: day(2026, 3, 17), Time: "08:00"},
			}, "America/Lima")
		require.NoError(t, err)
	})

	t.Run("rejects the eighth day", func(t *testing.T) {
		store := newFakeScheduleStore()
		svc := newScheduleServiceAt(store, now)

		_, err := svc.QueueSlots(context.Background(), 1, []int64{20},
			[]Slot{{Date: day(2026, 3, 18), Time: "09:00"}}, "America/Lima")
		assert.ErrorIs(t, err, domain.ErrOutOfWindow)
		assert.Empty(t, store.records)
	})

	t.Run("rejects past days", func(t *testing.T) {
		store := newFakeScheduleStore()
		svc := newScheduleServiceAt(store, now)

		_, err := svc.QueueSlots(context.Background(), 1, []int64{20},
			[]Slot{{Date: day(2026, 3, 9), Time: "09:00"}}, "America/Lima")
		assert.ErrorIs(t, err, domain.ErrOutOfWindow)
	})

	t.Run("one bad slot rejects the whole request", func(t *testing.T) {
		store := newFakeScheduleStore()
		svc := newScheduleServiceAt(store, now)

		_, err := svc.QueueSlots(context.Background(), 1, []int64{20},
			[]Slot{
				{Date: day(2026, 3, 11), Time: "09:00"},
				{Date: day(2026, 3, 20), Time: "09:00"},
			}, "America/Lima")
		assert.ErrorIs(t, err, domain.ErrOutOfWindow)
		assert.Empty(t, store.records)
	})

	t.Run("window follows the request timezone", func(t *testing.T) {
		// At 2026-03-10 14:00 UTC it is already 2026-03-10 23:00 in Tokyo,
		// so 2026-03-17 is Tokyo's seventh day and stays bookable.
		store := newFakeScheduleStore()
		svc := newScheduleServiceAt(store, now)

		_, err := svc.QueueSlots(context.Background(), 1, []int64{20},
			[]Slot{{Date: day(2026, 3, 17), Time: "09:00"}}, "Asia/Tokyo")
		require.NoError(t, err)
	})

	t.Run("unknown timezone", func(t *testing.T) {
		svc := newScheduleServiceAt(newFakeScheduleStore(), now)

		_, err := svc.QueueSlots(context.Background(), 1, []int64{20},
			[]Slot{{Date: day(2026, 3, 11), Time: "09:00"}}, "Mars/Olympus")
		assert.ErrorIs(t, err, domain.ErrInvalidTimezone)
	})

	t.Run("malformed time", func(t *testing.T) {
		svc := newScheduleServiceAt(newFakeScheduleStore(), now)

		_, err := svc.QueueSlots(context.Background(), 1, []int64{20},
			[]Slot{{Date: day(2026, 3, 11), Time: "9am"}}, "America/Lima")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("empty input", func(t *testing.T) {
		svc := newScheduleServiceAt(newFakeScheduleStore(), now)

		_, err := svc.QueueSlots(context.Background(), 1, nil,
			[]Slot{{Date: day(2026, 3, 11), Time: "09:00"}}, "America/Lima")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = svc.QueueSlots(context.Background(), 1, []int64{20}, nil, "America/Lima")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("insert failures skip the record", func(t *testing.T) {
		store := newFakeScheduleStore()
		store.insertErr = errors.New("deadlock")
		svc := newScheduleServiceAt(store, now)

		n, err := svc.QueueSlots(context.Background(), 1, []int64{20},
			[]Slot{{Date: day(2026, 3, 11), Time: "09:00"}}, "America/Lima")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	store := newFakeScheduleStore()
	svc := newScheduleServiceAt(store, now)

	_, err := store.InsertQueued(context.Background(), 1, 20, now.Add(24*time.Hour))
	require.NoError(t, err)
	_, err = store.InsertQueued(context.Background(), 2, 21, now.Add(24*time.Hour))
	require.NoError(t, err)
	_, err = store.InsertQueued(context.Background(), 1, 22, now.Add(10*24*time.Hour))
	require.NoError(t, err)

	slots, err := svc.Upcoming(context.Background(), 1, "America/Lima")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, int64(20), slots[0].Record.CollaboratorID)
	assert.Equal(t, "2026-03-11", slots[0].LocalDate)
	assert.Equal(t, "09:00", slots[0].LocalTime)
}

func TestCancel(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("cancels own queued record", func(t *testing.T) {
		store := newFakeScheduleStore()
		svc := newScheduleServiceAt(store, now)
		rec, err := store.InsertQueued(ctx, 1, 20, now.Add(time.Hour))
		require.NoError(t, err)

		require.NoError(t, svc.Cancel(ctx, 1, rec.ID))
		assert.Equal(t, domain.ScheduleStateCancelled, store.records[rec.ID].State)
	})

	t.Run("another leader's record looks missing", func(t *testing.T) {
		store := newFakeScheduleStore()
		svc := newScheduleServiceAt(store, now)
		rec, err := store.InsertQueued(ctx, 2, 20, now.Add(time.Hour))
		require.NoError(t, err)

		err = svc.Cancel(ctx, 1, rec.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, domain.ScheduleStateQueued, store.records[rec.ID].State)
	})

	t.Run("already dispatched", func(t *testing.T) {
		store := newFakeScheduleStore()
		svc := newScheduleServiceAt(store, now)
		rec, err := store.InsertQueued(ctx, 1, 20, now.Add(time.Hour))
		require.NoError(t, err)
		store.records[rec.ID].State = domain.ScheduleStateDispatched

		err = svc.Cancel(ctx, 1, rec.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.ErrorContains(t, err, "dispatched")
	})

	t.Run("unknown record", func(t *testing.T) {
		svc := newScheduleServiceAt(newFakeScheduleStore(), now)
		assert.ErrorIs(t, svc.Cancel(ctx, 1, 99), domain.ErrNotFound)
	})
}
