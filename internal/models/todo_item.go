package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the internal four-level priority of an extracted todo.
// p1 is most urgent, p4 least.
type Priority string

const (
	PriorityP1 Priority = "p1"
	PriorityP2 Priority = "p2"
	PriorityP3 Priority = "p3"
	PriorityP4 Priority = "p4"
)

// DefaultPriority is assigned when extraction does not specify one
const DefaultPriority = PriorityP4

// Valid reports whether the priority is one of p1..p4
func (p Priority) Valid() bool {
	switch p {
	case PriorityP1, PriorityP2, PriorityP3, PriorityP4:
		return true
	}
	return false
}

// ApprovalState is the review state of a todo item. An item starts pending
// and moves exactly once to approved or rejected, never back.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// Resolved reports whether the item has been approved or rejected
func (a ApprovalState) Resolved() bool {
	return a == ApprovalApproved || a == ApprovalRejected
}

// TodoItem represents one extracted candidate task tied to a process
type TodoItem struct {
	ID        uuid.UUID     `json:"id"`
	ProcessID uuid.UUID     `json:"process_id"`
	Content   string        `json:"content"`
	Priority  Priority      `json:"priority"`
	DueDate   *time.Time    `json:"due_date,omitempty"`
	Approval  ApprovalState `json:"approval"`
	CreatedAt time.Time     `json:"created_at"`
}

// TodoCandidate is one task candidate returned by the extraction adapter,
// before validation and persistence.
type TodoCandidate struct {
	Content  string  `json:"content"`
	Priority string  `json:"priority"`
	DueDate  *string `json:"dueDate"`
}
