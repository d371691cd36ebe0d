package domain

import "time"

// ScheduleState represents the lifecycle state of a schedule record.
// Dispatched and Cancelled are terminal.
type ScheduleState string

const (
	ScheduleStateQueued     ScheduleState = "queued"
	ScheduleStateDispatched ScheduleState = "dispatched"
	ScheduleStateCancelled  ScheduleState = "cancelled"
)

// ScheduleRecord is one planned test dispatch for a collaborator.
// ScheduledAt is always stored in UTC; ProcessedAt is set exactly when the
// record transitions to Dispatched.
type ScheduleRecord struct {
	ID             int64         `json:"id" db:"id"`
	LeaderID       int64         `json:"leader_id" db:"leader_id"`
	CollaboratorID int64         `json:"collaborator_id" db:"collaborator_id"`
	ScheduledAt    time.Time     `json:"scheduled_at" db:"scheduled_at"`
	State          ScheduleState `json:"state" db:"state"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	ProcessedAt    *time.Time    `json:"processed_at,omitempty" db:"processed_at"`
}
