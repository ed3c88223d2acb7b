package model

import "time"

// TicketArtifact is one claimable unit of admission backed by a
// single-page document in blob storage.  Artifacts are created by the
// decomposition pipeline (or manual admin entry) and cycle between
// available and claimed until deleted.
//
// Fields:
//  ID           – primary key identifier.
//  EventID      – event this artifact belongs to.
//  TicketTypeID – ticket type the artifact is assigned to (nil until assigned).
//  ObjectKey    – opaque blob storage key of the single-page document.
//  PageNumber   – original page number in the uploaded source document.
//  IsClaimed    – whether exactly one claim currently references this artifact.
//  ClaimedBy    – user holding the claim (nil when available).
//  ClaimedAt    – when the current claim was made (nil when available).
//  CreatedAt    – creation timestamp; claim selection is oldest-first.
type TicketArtifact struct {
    ID           uint64     // ticket_artifacts.id
    EventID      uint64     // ticket_artifacts.event_id
    TicketTypeID *uint64    // ticket_artifacts.ticket_type_id (nullable)
    ObjectKey    string     // ticket_artifacts.object_key
    PageNumber   uint32     // ticket_artifacts.page_number
    IsClaimed    bool       // ticket_artifacts.is_claimed
    ClaimedBy    *uint64    // ticket_artifacts.claimed_by (nullable)
    ClaimedAt    *time.Time // ticket_artifacts.claimed_at (nullable)
    CreatedAt    time.Time  // ticket_artifacts.created_at
}
