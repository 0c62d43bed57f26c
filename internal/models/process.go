package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessStatus represents the lifecycle status of a process
type ProcessStatus string

const (
	// ProcessStatusIncomplete means the process was created but extraction has not run
	ProcessStatusIncomplete ProcessStatus = "incomplete"
	// ProcessStatusProcessing means extraction is in progress
	ProcessStatusProcessing ProcessStatus = "processing"
	// ProcessStatusProcessed means extraction finished and items await review
	ProcessStatusProcessed ProcessStatus = "processed"
	// ProcessStatusAccepted means every extracted item was approved and pushed
	ProcessStatusAccepted ProcessStatus = "accepted"
	// ProcessStatusError means extraction failed
	ProcessStatusError ProcessStatus = "error"
)

// IsTerminal reports whether no further automated transition happens from this status.
// `processed` is terminal for the extraction lifecycle (the poller stops there) even
// though review can still move it to accepted.
func (s ProcessStatus) IsTerminal() bool {
	switch s {
	case ProcessStatusProcessed, ProcessStatusAccepted, ProcessStatusError:
		return true
	}
	return false
}

// Process represents one user-submitted text submission and its lifecycle
type Process struct {
	ID           uuid.UUID     `json:"id"`
	UserID       uuid.UUID     `json:"user_id"`
	Status       ProcessStatus `json:"status"`
	Content      string        `json:"content"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	Version      int           `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// StatusSnapshot is the read-only view served to status observers
type StatusSnapshot struct {
	Status       ProcessStatus `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Snapshot returns the observer view of the process
func (p *Process) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		Status:       p.Status,
		ErrorMessage: p.ErrorMessage,
		UpdatedAt:    p.UpdatedAt,
	}
}
