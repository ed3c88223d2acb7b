package model

import "time"

// TicketClaim is the durable record binding one user to one ticket
// artifact for one event.  It is the source of truth for allocation:
// events.claimed_count and ticket_artifacts.is_claimed are derived from
// these rows.  The table carries UNIQUE(user_id, event_id) and
// UNIQUE(ticket_id) so neither a double claim per user nor a
// double-referenced artifact can exist.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – user holding the claim.
//  EventID      – event the claim is for.
//  TicketID     – the claimed artifact; exactly one claim per artifact.
//  TicketTypeID – ticket type of the claimed artifact.
//  ClaimedAt    – when the claim was made (UTC).
type TicketClaim struct {
    ID           uint64    // ticket_claims.id
    UserID       uint64    // ticket_claims.user_id
    EventID      uint64    // ticket_claims.event_id
    TicketID     uint64    // ticket_claims.ticket_id
    TicketTypeID uint64    // ticket_claims.ticket_type_id
    ClaimedAt    time.Time // ticket_claims.claimed_at
}
