package domain

import "time"

// AssignmentStatus represents the state of a leader-collaborator relation.
type AssignmentStatus string

const (
	AssignmentActive AssignmentStatus = "active"
	AssignmentEnded  AssignmentStatus = "ended"
)

// Assignment links a collaborator to the leader who supervises them. The
// escalation engine only ever consults the active relation.
type Assignment struct {
	ID             int64            `json:"id" db:"id"`
	LeaderID       int64            `json:"leader_id" db:"leader_id"`
	CollaboratorID int64            `json:"collaborator_id" db:"collaborator_id"`
	Status         AssignmentStatus `json:"status" db:"status"`
	StartedAt      time.Time        `json:"started_at" db:"started_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty" db:"ended_at"`
}

// InvitationStatus represents the state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
)

// Invitation is a leader's offer to bring a collaborator into their team,
// accepted with the emailed one-time code.
type Invitation struct {
	ID          int64            `json:"id" db:"id"`
	LeaderID    int64            `json:"leader_id" db:"leader_id"`
	Name        string           `json:"name" db:"name"`
	Email       string           `json:"email" db:"email"`
	Code        string           `json:"-" db:"code"`
	Status      InvitationStatus `json:"status" db:"status"`
	SentAt      time.Time        `json:"sent_at" db:"sent_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty" db:"responded_at"`
}
