package model

import "time"

// TicketType represents a row in the `ticket_types` table.  Quantity is an
// informational target for how many artifacts the organizer intends to
// upload; it does not cap the artifact count.  Criteria is the parsed
// closed set of tiers eligible to claim this type.
//
// Fields:
//  ID         – primary key identifier.
//  EventID    – event this type belongs to.
//  Name       – display name (e.g. "General Admission").
//  PriceCents – price in cents, informational.
//  Quantity   – intended artifact count, informational.
//  Criteria   – tiers eligible to claim this type.
//  CreatedAt  – creation timestamp.
type TicketType struct {
    ID         uint64       // ticket_types.id
    EventID    uint64       // ticket_types.event_id
    Name       string       // ticket_types.name
    PriceCents uint32       // ticket_types.price_cents
    Quantity   uint32       // ticket_types.quantity
    Criteria   TierCriteria // parsed ticket_types.tier_criteria
    CreatedAt  time.Time    // ticket_types.created_at
}
