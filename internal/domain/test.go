package domain

import "time"

// TestState represents the lifecycle state of a stress test.
type TestState string

const (
	TestStatePending   TestState = "pending"
	TestStateInProcess TestState = "in_process"
	TestStateCompleted TestState = "completed"
)

// StressTest is one administered stress assessment. Outcome and CompletedAt
// are non-nil exactly when State is Completed; true means stressed.
type StressTest struct {
	ID             int64      `json:"id" db:"id"`
	CollaboratorID int64      `json:"collaborator_id" db:"collaborator_id"`
	RegisteredAt   time.Time  `json:"registered_at" db:"registered_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	State          TestState  `json:"state" db:"state"`
	Outcome        *bool      `json:"outcome,omitempty" db:"outcome"`
}

// PendingTest pairs a queued test with its earliest linked notification.
type PendingTest struct {
	Test           StressTest `json:"test"`
	NotificationID *int64     `json:"notification_id,omitempty"`
}
