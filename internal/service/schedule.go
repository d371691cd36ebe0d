package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumire/stressless/internal/clock"
	"github.com/sumire/stressless/internal/domain"
)

// schedulingWindow is how far ahead a leader may book test slots.
const schedulingWindow = 7 * 24 * time.Hour

// ScheduleStore defines the schedule data access interface consumed by
// ScheduleService.
type ScheduleStore interface {
	InsertQueued(ctx context.Context, leaderID, collaboratorID int64, scheduledAt time.Time) (*domain.ScheduleRecord, error)
	FindByID(ctx context.Context, id int64) (*domain.ScheduleRecord, error)
	CancelQueued(ctx context.Context, id int64) error
	ListUpcoming(ctx context.Context, leaderID int64, from, to time.Time) ([]domain.ScheduleRecord, error)
}

// Slot is one leader-chosen calendar position, local to the request timezone.
type Slot struct {
	Date time.Time
	Time string // "HH:MM"
}

// UpcomingSlot is a queued record rendered back into a presentation zone.
type UpcomingSlot struct {
	Record    domain.ScheduleRecord `json:"record"`
	LocalDate string                `json:"local_date"`
	LocalTime string                `json:"local_time"`
}

// ScheduleService turns leader calendar requests into queued dispatch records.
type ScheduleService struct {
	store ScheduleStore
	log   *slog.Logger
	now   func() time.Time
}

// NewScheduleService creates a new ScheduleService.
func NewScheduleService(store ScheduleStore, log *slog.Logger) *ScheduleService {
	return &ScheduleService{store: store, log: log, now: time.Now}
}

// QueueSlots validates and stores one queued record per (slot, collaborator)
// pair. Every slot must fall within the next seven days of "today" in the
// request timezone; any out-of-window or unconvertible slot rejects the whole
// request before anything is written. Individual insert failures after that
// point skip only the failing record.
func (s *ScheduleService) QueueSlots(ctx context.Context, leaderID int64, collaboratorIDs []int64, slots []Slot, tzName string) (int, error) {
	if len(collaboratorIDs) == 0 || len(slots) == 0 {
		return 0, fmt.Errorf("%w: empty collaborators or slots", domain.ErrInvalidInput)
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, tzName)
	}

	nowLocal := s.now().In(loc)
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)
	limit := today.AddDate(0, 0, 7)

	instants := make([]time.Time, 0, len(slots))
	for _, slot := range slots {
		day := time.Date(slot.Date.Year(), slot.Date.Month(), slot.Date.Day(), 0, 0, 0, 0, loc)
		if day.Before(today) || day.After(limit) {
			return 0, fmt.Errorf("%w: %s", domain.ErrOutOfWindow, day.Format("2006-01-02"))
		}
		instant, err := clock.ToAbsolute(slot.Date, slot.Time, tzName)
		if err != nil {
			return 0, err
		}
		instants = append(instants, instant)
	}

	inserted := 0
	for _, instant := range instants {
		for _, collaboratorID := range collaboratorIDs {
			if _, err := s.store.InsertQueued(ctx, leaderID, collaboratorID, instant); err != nil {
				s.log.Error("queue slot failed",
					"leader_id", leaderID,
					"collaborator_id", collaboratorID,
					"scheduled_at", instant,
					"error", err)
				continue
			}
			inserted++
		}
	}
	return inserted, nil
}

// Upcoming returns the leader's queued records for the next seven days,
// rendered in the requested presentation zone.
func (s *ScheduleService) Upcoming(ctx context.Context, leaderID int64, tzName string) ([]UpcomingSlot, error) {
	now := s.now()
	recs, err := s.store.ListUpcoming(ctx, leaderID, now, now.Add(schedulingWindow))
	if err != nil {
		return nil, err
	}

	out := make([]UpcomingSlot, 0, len(recs))
	for _, rec := range recs {
		day, hhmm, err := clock.ToLocal(rec.ScheduledAt, tzName)
		if err != nil {
			return nil, err
		}
		out = append(out, UpcomingSlot{
			Record:    rec,
			LocalDate: day.Format("2006-01-02"),
			LocalTime: hhmm,
		})
	}
	return out, nil
}

// Cancel withdraws one of the caller's still-queued records. Records owned by
// another leader are reported as not found rather than forbidden.
func (s *ScheduleService) Cancel(ctx context.Context, leaderID, scheduleID int64) error {
	rec, err := s.store.FindByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if rec.LeaderID != leaderID {
		return domain.ErrNotFound
	}
	if err := s.store.CancelQueued(ctx, scheduleID); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return fmt.Errorf("%w: schedule record %d is %s", domain.ErrInvalidState, scheduleID, rec.State)
		}
		return err
	}
	return nil
}
