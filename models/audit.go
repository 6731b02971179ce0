package models

import "time"

type AuditAction string

const (
	AuditCreate       AuditAction = "create"
	AuditUpdate       AuditAction = "update"
	AuditDelete       AuditAction = "delete"
	AuditStatusChange AuditAction = "status_change"
)

// AuditEntry is an immutable fact about a state change. Entries are
// write-once; nothing in this codebase updates or deletes them.
// PerformedBy is always the authenticated caller, never client input.
type AuditEntry struct {
	ID         string      `json:"id"`
	OwnerUID   string      `json:"ownerUid"`
	ActionType AuditAction `json:"actionType"`
	EntityType string      `json:"entityType"`
	EntityID   string      `json:"entityId"`

	PerformedBy   string `json:"performedBy"`
	PreviousValue string `json:"previousValue,omitempty"`
	NewValue      string `json:"newValue,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
