package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/events"
	"github.com/sumire/stressless/internal/metrics"
	"github.com/sumire/stressless/internal/ml"
)

// streakLength is how many consecutive stressed outcomes raise an escalation.
const streakLength = 3

// TestStore defines the test data access interface consumed by TestService.
type TestStore interface {
	NextPending(ctx context.Context, collaboratorID int64) (*domain.StressTest, error)
	ListPending(ctx context.Context, collaboratorID int64) ([]domain.PendingTest, error)
	CompleteNext(ctx context.Context, collaboratorID int64, outcome bool, now time.Time) (*domain.StressTest, error)
	LastCompleted(ctx context.Context, collaboratorID int64, limit int) ([]domain.StressTest, error)
	History(ctx context.Context, collaboratorID int64) ([]domain.StressTest, error)
	CreateWithNotification(ctx context.Context, collaboratorID int64, registeredAt time.Time, message string) (*domain.StressTest, *domain.Notification, error)
}

// AssignmentStore resolves the active leader relation for a collaborator.
type AssignmentStore interface {
	ActiveLeaderFor(ctx context.Context, collaboratorID int64) (*domain.Assignment, error)
}

// EscalationStore defines the escalation writes consumed by TestService.
type EscalationStore interface {
	ExistsSince(ctx context.Context, leaderID, collaboratorID int64, minStreak int, since time.Time) (bool, error)
	Create(ctx context.Context, esc domain.LeaderEscalation) (*domain.LeaderEscalation, error)
}

// UserReader resolves account records for display names.
type UserReader interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
}

// TestService owns the pending-test queue and the completion and escalation
// flow.
type TestService struct {
	tests       TestStore
	assignments AssignmentStore
	escalations EscalationStore
	users       UserReader
	predictor   ml.Predictor
	publisher   events.Publisher
	log         *slog.Logger
	now         func() time.Time
}

// NewTestService creates a new TestService.
func NewTestService(tests TestStore, assignments AssignmentStore, escalations EscalationStore, users UserReader, predictor ml.Predictor, publisher events.Publisher, log *slog.Logger) *TestService {
	return &TestService{
		tests:       tests,
		assignments: assignments,
		escalations: escalations,
		users:       users,
		predictor:   predictor,
		publisher:   publisher,
		log:         log,
		now:         time.Now,
	}
}

// NextPending returns the head of the collaborator's FIFO queue, or nil when
// the queue is empty.
func (s *TestService) NextPending(ctx context.Context, collaboratorID int64) (*domain.StressTest, error) {
	test, err := s.tests.NextPending(ctx, collaboratorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return test, nil
}

// AllPending returns the collaborator's full backlog in queue order.
func (s *TestService) AllPending(ctx context.Context, collaboratorID int64) ([]domain.PendingTest, error) {
	return s.tests.ListPending(ctx, collaboratorID)
}

// History returns every test for the collaborator, oldest first.
func (s *TestService) History(ctx context.Context, collaboratorID int64) ([]domain.StressTest, error) {
	return s.tests.History(ctx, collaboratorID)
}

// Complete closes out the head of the collaborator's queue with the given
// outcome, then evaluates the stress streak. The test id is re-derived from
// the queue, never taken from the caller, so out-of-order completion is
// impossible. Returns domain.ErrNoPendingTest when the queue is empty.
//
// Escalation is derived alerting on top of an already-committed completion:
// failures there are logged, not surfaced.
func (s *TestService) Complete(ctx context.Context, collaboratorID int64, outcome bool) (*domain.StressTest, error) {
	test, err := s.tests.CompleteNext(ctx, collaboratorID, outcome, s.now())
	if err != nil {
		return nil, err
	}

	s.evaluateStreak(ctx, collaboratorID)
	return test, nil
}

// Analyze obtains a stress verdict for the referenced audio sample and feeds
// it straight into Complete.
func (s *TestService) Analyze(ctx context.Context, collaboratorID int64, audioRef string) (*domain.StressTest, error) {
	if s.predictor == nil {
		return nil, fmt.Errorf("%w: audio analysis is not configured", domain.ErrInvalidInput)
	}
	stressed, err := s.predictor.Predict(ctx, audioRef)
	if err != nil {
		return nil, fmt.Errorf("predict stress for collaborator %d: %w", collaboratorID, err)
	}
	return s.Complete(ctx, collaboratorID, stressed)
}

// CreateDirect registers an immediate pending test plus notification for each
// collaborator, bypassing the calendar. Per-collaborator failures skip only
// that collaborator.
func (s *TestService) CreateDirect(ctx context.Context, collaboratorIDs []int64) (int, error) {
	if len(collaboratorIDs) == 0 {
		return 0, fmt.Errorf("%w: no collaborators", domain.ErrInvalidInput)
	}

	created := 0
	for _, collaboratorID := range collaboratorIDs {
		_, notif, err := s.tests.CreateWithNotification(ctx, collaboratorID, s.now().UTC(), domain.PendingTestMessage)
		if err != nil {
			s.log.Error("direct test creation failed", "collaborator_id", collaboratorID, "error", err)
			continue
		}
		created++
		if err := s.publisher.NotificationCreated(ctx, *notif); err != nil {
			s.log.Error("publish notification event failed", "notification_id", notif.ID, "error", err)
		}
	}
	return created, nil
}

// evaluateStreak raises a leader escalation when the collaborator's three most
// recent completed tests all came back stressed, unless the current streak was
// already reported. A collaborator without an active leader completes quietly.
func (s *TestService) evaluateStreak(ctx context.Context, collaboratorID int64) {
	last, err := s.tests.LastCompleted(ctx, collaboratorID, streakLength)
	if err != nil {
		s.log.Error("load recent completions failed", "collaborator_id", collaboratorID, "error", err)
		return
	}
	if len(last) < streakLength {
		return
	}
	for _, test := range last {
		if test.Outcome == nil || !*test.Outcome {
			return
		}
	}

	assignment, err := s.assignments.ActiveLeaderFor(ctx, collaboratorID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Error("resolve leader failed", "collaborator_id", collaboratorID, "error", err)
		}
		return
	}

	// The oldest of the three marks the instant the streak qualified; any
	// escalation at or after it already covers this streak.
	third := last[len(last)-1]
	if third.CompletedAt == nil {
		return
	}
	exists, err := s.escalations.ExistsSince(ctx, assignment.LeaderID, collaboratorID, streakLength, *third.CompletedAt)
	if err != nil {
		s.log.Error("escalation dedup check failed", "collaborator_id", collaboratorID, "error", err)
		return
	}
	if exists {
		return
	}

	name := fmt.Sprintf("#%d", collaboratorID)
	if user, err := s.users.FindByID(ctx, collaboratorID); err == nil {
		name = user.Name
	}

	esc, err := s.escalations.Create(ctx, domain.LeaderEscalation{
		LeaderID:       assignment.LeaderID,
		CollaboratorID: collaboratorID,
		StreakLength:   streakLength,
		Message:        fmt.Sprintf("Collaborator %s has %d consecutive stress results", name, streakLength),
	})
	if err != nil {
		s.log.Error("create escalation failed", "collaborator_id", collaboratorID, "error", err)
		return
	}

	metrics.Escalations.Inc()
	s.log.Info("leader escalation created",
		"escalation_id", esc.ID,
		"leader_id", esc.LeaderID,
		"collaborator_id", collaboratorID)

	if err := s.publisher.EscalationCreated(ctx, *esc); err != nil {
		s.log.Error("publish escalation event failed", "escalation_id", esc.ID, "error", err)
	}
}
