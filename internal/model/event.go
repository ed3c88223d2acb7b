package model

import "time"

// Event represents a row in the `events` table.  Capacity is the maximum
// number of artifacts that may be claimed; ClaimedCount is a redundant
// aggregate of the claim rows for the event and is only adjusted inside
// the same transaction as the claim mutation it reflects.
//
// Fields:
//  ID           – primary key identifier.
//  Name         – display name of the event.
//  EventDate    – when the event takes place (UTC).
//  Capacity     – maximum allocatable artifacts.
//  ClaimedCount – cached count of ticket_claims rows for this event.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Event struct {
    ID           uint64    // events.id
    Name         string    // events.name
    EventDate    time.Time // events.event_date
    Capacity     uint32    // events.capacity
    ClaimedCount uint32    // events.claimed_count
    CreatedAt    time.Time // events.created_at
    UpdatedAt    time.Time // events.updated_at
}

// Availability is the fast-read view of an event's remaining capacity
// served from the counter cache.
type Availability struct {
    EventID   uint64 `json:"event_id"`
    Capacity  uint32 `json:"capacity"`
    Claimed   uint32 `json:"claimed"`
    Remaining uint32 `json:"remaining"`
}
