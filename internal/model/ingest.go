package model

import "time"

// PageOutcome tags how a committed page was turned into an artifact.  The
// extraction/rasterization fallback is an explicit result variant rather
// than control flow, so callers and tests can assert which path ran.
type PageOutcome string

const (
    // OutcomeExtracted means the page's native content (vectors, fonts,
    // barcodes) was copied into a standalone single-page document.  A
    // single-page source stored verbatim also reports this outcome.
    OutcomeExtracted PageOutcome = "EXTRACTED"
    // OutcomeRasterized means structural extraction failed and the page
    // was rendered to an image embedded in a new single-page document.
    OutcomeRasterized PageOutcome = "RASTERIZED"
    // OutcomeFailed means both paths failed; no artifact was created for
    // this page.  Other pages in the batch are unaffected.
    OutcomeFailed PageOutcome = "FAILED"
)

// IngestSession represents a row in the `ingest_sessions` table.  It ties
// a staged multi-page upload to the ticket type its pages will populate.
// The session stays available until the admin has committed every page
// they want, so failed pages can be retried.
type IngestSession struct {
    ID           string    // ingest_sessions.id (ULID)
    TicketTypeID uint64    // ingest_sessions.ticket_type_id
    EventID      uint64    // ingest_sessions.event_id
    ObjectKey    string    // ingest_sessions.object_key (staged source document)
    PageCount    int       // ingest_sessions.page_count
    CreatedAt    time.Time // ingest_sessions.created_at
}

// PagePreview is a raster preview of one source page, produced during
// ingest for manual page selection.  No inventory exists yet at this
// point.
type PagePreview struct {
    PageNumber int    `json:"page_number"` // 1-based page number in the source
    PNG        []byte `json:"png"`         // rendered preview image
}

// PageResult reports the terminal outcome for one committed page.  Error
// is empty unless Outcome is OutcomeFailed.
type PageResult struct {
    PageNumber int         `json:"page_number"`
    Outcome    PageOutcome `json:"outcome"`
    TicketID   uint64      `json:"ticket_id,omitempty"`
    ObjectKey  string      `json:"object_key,omitempty"`
    Error      string      `json:"error,omitempty"`
}
