// Package scheduler runs the background loop that turns due schedule records
// into live pending tests.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/events"
	"github.com/sumire/stressless/internal/metrics"
)

// DefaultPollInterval is the sleep between poll cycles.
const DefaultPollInterval = 30 * time.Second

// DispatchStore defines the schedule data access the dispatcher needs. The
// Dispatch implementation must be transactional and flip the record state
// with a compare-and-set, so a record is materialized at most once even when
// a cancellation races the loop.
type DispatchStore interface {
	FindDue(ctx context.Context, now time.Time) ([]domain.ScheduleRecord, error)
	Dispatch(ctx context.Context, rec domain.ScheduleRecord, now time.Time, message string) (*domain.StressTest, *domain.Notification, error)
}

// Dispatcher is the single long-lived background task converting due
// schedule records into tests and notifications.
type Dispatcher struct {
	store     DispatchStore
	publisher events.Publisher
	log       *slog.Logger
	interval  time.Duration
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a dispatcher polling at the given interval. A non-positive
// interval falls back to DefaultPollInterval.
func New(store DispatchStore, publisher events.Publisher, log *slog.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		log:       log,
		interval:  interval,
		now:       time.Now,
	}
}

// Start launches the poll loop in the background.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(1)
	go d.run(ctx)
	d.log.Info("dispatch scheduler started", "interval", d.interval)
}

// Stop signals the loop to exit and waits for the in-flight cycle to finish.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
	d.log.Info("dispatch scheduler stopped")
}

// run sleeps between cycles rather than ticking on a fixed cadence, so a slow
// store lengthens the cycle instead of piling up work. A failing cycle is
// logged and followed by the normal sleep; the loop itself never dies.
func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := d.PollAndDispatch(ctx, d.now()); err != nil {
			metrics.SchedulerCycles.WithLabelValues("error").Inc()
			d.log.Error("scheduler cycle failed", "error", err)
		} else {
			metrics.SchedulerCycles.WithLabelValues("ok").Inc()
		}

		timer.Reset(d.interval)
	}
}

// PollAndDispatch runs one cycle: every Queued record due at or before now is
// materialized into a pending test plus notification and marked Dispatched.
// Each record is its own transaction; one record failing does not touch the
// others. Records whose state flipped since the due query (a racing cancel)
// are skipped silently.
func (d *Dispatcher) PollAndDispatch(ctx context.Context, now time.Time) error {
	due, err := d.store.FindDue(ctx, now)
	if err != nil {
		return err
	}

	for _, rec := range due {
		test, notif, err := d.store.Dispatch(ctx, rec, now, domain.PendingTestMessage)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				metrics.Dispatches.WithLabelValues("skipped").Inc()
				continue
			}
			metrics.Dispatches.WithLabelValues("error").Inc()
			d.log.Error("dispatch failed",
				"schedule_id", rec.ID,
				"collaborator_id", rec.CollaboratorID,
				"error", err)
			continue
		}

		metrics.Dispatches.WithLabelValues("ok").Inc()
		d.log.Info("schedule record dispatched",
			"schedule_id", rec.ID,
			"test_id", test.ID,
			"collaborator_id", rec.CollaboratorID)

		if err := d.publisher.NotificationCreated(ctx, *notif); err != nil {
			d.log.Error("publish notification event failed", "notification_id", notif.ID, "error", err)
		}
	}
	return nil
}
