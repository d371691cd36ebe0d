package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/events"
)

// fakeDispatchStore mimics the transactional CAS semantics of the real store:
// a record dispatches exactly once, and records flipped to another state
// report ErrInvalidState.
type fakeDispatchStore struct {
	mu      sync.Mutex
	records map[int64]*domain.ScheduleRecord

	findErr     error
	failIDs     map[int64]error
	dispatched  []int64
	nextTestID  int64
	nextNotifID int64
}

func newFakeDispatchStore(records ...domain.ScheduleRecord) *fakeDispatchStore {
	s := &fakeDispatchStore{
		records: make(map[int64]*domain.ScheduleRecord),
		failIDs: make(map[int64]error),
	}
	for i := range records {
		rec := records[i]
		s.records[rec.ID] = &rec
	}
	return s
}

func (s *fakeDispatchStore) FindDue(_ context.Context, now time.Time) ([]domain.ScheduleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var due []domain.ScheduleRecord
	for _, rec := range s.records {
		if rec.State == domain.ScheduleStateQueued && !rec.ScheduledAt.After(now) {
			due = append(due, *rec)
		}
	}
	return due, nil
}

func (s *fakeDispatchStore) Dispatch(_ context.Context, rec domain.ScheduleRecord, now time.Time, message string) (*domain.StressTest, *domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failIDs[rec.ID]; ok {
		return nil, nil, err
	}
	stored, ok := s.records[rec.ID]
	if !ok || stored.State != domain.ScheduleStateQueued {
		return nil, nil, domain.ErrInvalidState
	}
	stored.State = domain.ScheduleStateDispatched
	stored.ProcessedAt = &now

	s.nextTestID++
	s.nextNotifID++
	s.dispatched = append(s.dispatched, rec.ID)
	test := &domain.StressTest{
		ID:             s.nextTestID,
		CollaboratorID: rec.CollaboratorID,
		RegisteredAt:   now,
		State:          domain.TestStatePending,
	}
	notif := &domain.Notification{
		ID:             s.nextNotifID,
		CollaboratorID: rec.CollaboratorID,
		TestID:         test.ID,
		Message:        message,
	}
	return test, notif, nil
}

type capturingPublisher struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func (p *capturingPublisher) NotificationCreated(_ context.Context, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
	return nil
}

func (p *capturingPublisher) EscalationCreated(context.Context, domain.LeaderEscalation) error {
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollAndDispatchMaterializesDueRecords(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	store := newFakeDispatchStore(
		domain.ScheduleRecord{ID: 1, LeaderID: 10, CollaboratorID: 20, ScheduledAt: now.Add(-time.Minute), State: domain.ScheduleStateQueued},
		domain.ScheduleRecord{ID: 2, LeaderID: 10, CollaboratorID: 21, ScheduledAt: now, State: domain.ScheduleStateQueued},
		domain.ScheduleRecord{ID: 3, LeaderID: 10, CollaboratorID: 22, ScheduledAt: now.Add(time.Hour), State: domain.ScheduleStateQueued},
	)
	pub := &capturingPublisher{}
	d := New(store, pub, testLogger(), time.Minute)

	require.NoError(t, d.PollAndDispatch(context.Background(), now))

	assert.ElementsMatch(t, []int64{1, 2}, store.dispatched)
	assert.Equal(t, domain.ScheduleStateQueued, store.records[3].State)
	assert.Len(t, pub.notifications, 2)
	for _, rec := range []int64{1, 2} {
		assert.Equal(t, domain.ScheduleStateDispatched, store.records[rec].State)
		assert.NotNil(t, store.records[rec].ProcessedAt)
	}
}

func TestPollAndDispatchIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	store := newFakeDispatchStore(
		domain.ScheduleRecord{ID: 1, CollaboratorID: 20, ScheduledAt: now.Add(-time.Minute), State: domain.ScheduleStateQueued},
	)
	d := New(store, events.NopPublisher{}, testLogger(), time.Minute)

	require.NoError(t, d.PollAndDispatch(context.Background(), now))
	require.NoError(t, d.PollAndDispatch(context.Background(), now))

	assert.Equal(t, []int64{1}, store.dispatched)
}

func TestPollAndDispatchSkipsRacingCancel(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	store := newFakeDispatchStore(
		domain.ScheduleRecord{ID: 1, CollaboratorID: 20, ScheduledAt: now.Add(-time.Minute), State: domain.ScheduleStateQueued},
		domain.ScheduleRecord{ID: 2, CollaboratorID: 21, ScheduledAt: now.Add(-time.Minute), State: domain.ScheduleStateQueued},
	)
	// Record 1 loses the race: its state flips between FindDue and Dispatch.
	store.failIDs[1] = domain.ErrInvalidState
	d := New(store, events.NopPublisher{}, testLogger(), time.Minute)

	require.NoError(t, d.PollAndDispatch(context.Background(), now))

	assert.Equal(t, []int64{2}, store.dispatched)
}

func TestPollAndDispatchIsolatesRecordFailures(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	store := newFakeDispatchStore(
		domain.ScheduleRecord{ID: 1, CollaboratorID: 20, ScheduledAt: now.Add(-time.Minute), State: domain.ScheduleStateQueued},
		domain.ScheduleRecord{ID: 2, CollaboratorID: 21, ScheduledAt: now.Add(-time.Minute), State: domain.ScheduleStateQueued},
	)
	store.failIDs[1] = fmt.Errorf("insert test: %w", errors.New("connection reset"))
	d := New(store, events.NopPublisher{}, testLogger(), time.Minute)

	require.NoError(t, d.PollAndDispatch(context.Background(), now))

	assert.Equal(t, []int64{2}, store.dispatched)
	assert.Equal(t, domain.ScheduleStateQueued, store.records[1].State)
}

func TestPollAndDispatchSurfacesQueryErrors(t *testing.T) {
	store := newFakeDispatchStore()
	store.findErr = errors.New("database gone")
	d := New(store, events.NopPublisher{}, testLogger(), time.Minute)

	err := d.PollAndDispatch(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorContains(t, err, "database gone")
}

func TestStartStop(t *testing.T) {
	store := newFakeDispatchStore()
	d := New(store, events.NopPublisher{}, testLogger(), 5*time.Millisecond)

	d.Start()
	time.Sleep(25 * time.Millisecond)
	d.Stop()

	// Stop is safe to call again and on a never-started dispatcher.
	d.Stop()
	New(store, events.NopPublisher{}, testLogger(), 0).Stop()
}

func TestNewDefaultsInterval(t *testing.T) {
	d := New(newFakeDispatchStore(), events.NopPublisher{}, testLogger(), 0)
	assert.Equal(t, DefaultPollInterval, d.interval)
}
