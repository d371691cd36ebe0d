package domain

import "time"

// PendingTestMessage is the body of every dispatch notification.
const PendingTestMessage = "You have a new pending stress test"

// Notification is an in-app prompt for a collaborator, tied to one test.
type Notification struct {
	ID             int64     `json:"id" db:"id"`
	CollaboratorID int64     `json:"collaborator_id" db:"collaborator_id"`
	TestID         int64     `json:"test_id" db:"test_id"`
	Message        string    `json:"message" db:"message"`
	Read           bool      `json:"read" db:"read"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// LeaderEscalation alerts a leader that a collaborator accumulated a streak of
// stressed outcomes. At most one escalation exists per distinct streak.
type LeaderEscalation struct {
	ID             int64     `json:"id" db:"id"`
	LeaderID       int64     `json:"leader_id" db:"leader_id"`
	CollaboratorID int64     `json:"collaborator_id" db:"collaborator_id"`
	StreakLength   int       `json:"streak_length" db:"streak_length"`
	Message        string    `json:"message" db:"message"`
	Read           bool      `json:"read" db:"read"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
