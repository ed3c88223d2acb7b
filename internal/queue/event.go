// Package queue defines message payloads exchanged over the message broker.
package queue

// Allocation event kinds. Admin assignments publish KindAssigned so the
// audit trail distinguishes them from self-service claims.
const (
	KindClaimed  = "CLAIMED"
	KindReleased = "RELEASED"
	KindAssigned = "ASSIGNED"
)

// AllocationEvent is published after every successful allocation change.
// It carries enough for downstream consumers to audit or notify without
// querying the primary database.
type AllocationEvent struct {
	Kind         string `json:"kind"`
	ClaimID      uint64 `json:"claim_id"`
	UserID       uint64 `json:"user_id"`
	EventID      uint64 `json:"event_id"`
	TicketID     uint64 `json:"ticket_id"`
	TicketTypeID uint64 `json:"ticket_type_id"`
	OccurredAt   string `json:"occurred_at"`
}
