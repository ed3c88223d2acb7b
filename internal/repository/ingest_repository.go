package repository

import (
    "context"
    "database/sql"

    "github.com/gateleaf/ticket-engine/internal/model"
)

// IngestRepo persists ingest sessions and the artifacts produced from
// them.  A session ties one staged multi-page upload to a ticket type
// so page commits can be retried until the admin is done with it.
type IngestRepo struct {
    db *sql.DB
}

// NewIngestRepo returns a new IngestRepo bound to the given database.
func NewIngestRepo(db *sql.DB) *IngestRepo { return &IngestRepo{db: db} }

// CreateSession inserts a session row.  The ID is generated by the
// pipeline (a ULID) rather than the database so the staging blob key
// can embed it before the row exists.
func (r *IngestRepo) CreateSession(ctx context.Context, s *model.IngestSession) error {
    const q = `INSERT INTO ingest_sessions (id, ticket_type_id, event_id, object_key, page_count)
               VALUES (?, ?, ?, ?, ?)`
    _, err := r.db.ExecContext(ctx, q, s.ID, s.TicketTypeID, s.EventID, s.ObjectKey, s.PageCount)
    return err
}

// SessionByID loads one session.  sql.ErrNoRows when absent.
func (r *IngestRepo) SessionByID(ctx context.Context, id string) (model.IngestSession, error) {
    const q = `SELECT id, ticket_type_id, event_id, object_key, page_count, created_at
               FROM ingest_sessions WHERE id = ?`
    var s model.IngestSession
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &s.ID, &s.TicketTypeID, &s.EventID, &s.ObjectKey, &s.PageCount, &s.CreatedAt,
    )
    return s, err
}

// CreateArtifact inserts one artifact produced from a committed page.
func (r *IngestRepo) CreateArtifact(ctx context.Context, t *model.TicketArtifact) error {
    const q = `INSERT INTO ticket_artifacts (event_id, ticket_type_id, object_key, page_number)
               VALUES (?, ?, ?, ?)`
    var typeID interface{}
    if t.TicketTypeID != nil {
        typeID = *t.TicketTypeID
    }
    res, err := r.db.ExecContext(ctx, q, t.EventID, typeID, t.ObjectKey, t.PageNumber)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    t.ID = uint64(id)
    return nil
}

// CommittedPages lists the pages of a session that already produced an
// artifact, in page order.
func (r *IngestRepo) CommittedPages(ctx context.Context, sessionID string) ([]int, error) {
    const q = `SELECT page_number FROM ingest_committed_pages
               WHERE session_id = ? ORDER BY page_number`
    rows, err := r.db.QueryContext(ctx, q, sessionID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var pages []int
    for rows.Next() {
        var page int
        if err := rows.Scan(&page); err != nil {
            return nil, err
        }
        pages = append(pages, page)
    }
    return pages, rows.Err()
}

// MarkPageCommitted records that a page produced an artifact.  The
// primary key on (session_id, page_number) rejects a second record.
func (r *IngestRepo) MarkPageCommitted(ctx context.Context, sessionID string, page int) error {
    const q = `INSERT INTO ingest_committed_pages (session_id, page_number) VALUES (?, ?)`
    _, err := r.db.ExecContext(ctx, q, sessionID, page)
    return err
}

// DeleteSession removes a finished session row.  The staged blob is the
// caller's concern.
func (r *IngestRepo) DeleteSession(ctx context.Context, id string) error {
    res, err := r.db.ExecContext(ctx, `DELETE FROM ingest_sessions WHERE id = ?`, id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return sql.ErrNoRows
    }
    return nil
}
