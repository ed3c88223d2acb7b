package repository

import (
    "context"
    "database/sql"

    "github.com/gateleaf/ticket-engine/internal/model"
)

// TicketRepo provides read and insert access to ticket artifacts outside
// of allocation transactions: inventory listings for admins, manual
// artifact entry, and lookups for signed URL generation.  Claim-state
// mutations go through AllocationStore only.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketSelect = `SELECT id, event_id, ticket_type_id, object_key, page_number, is_claimed, claimed_by, claimed_at, created_at FROM ticket_artifacts`

// Create inserts one artifact row and populates the generated ID.  Used
// by the decomposition pipeline and by manual admin entry.
func (r *TicketRepo) Create(ctx context.Context, t *model.TicketArtifact) error {
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

// GetByID returns one artifact.  sql.ErrNoRows when absent.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (model.TicketArtifact, error) {
    return scanTicket(r.db.QueryRowContext(ctx, ticketSelect+` WHERE id = ?`, id))
}

// ListByType returns all artifacts of a ticket type, oldest first, the
// same order the allocator consumes them in.
func (r *TicketRepo) ListByType(ctx context.Context, ticketTypeID uint64) ([]model.TicketArtifact, error) {
    rows, err := r.db.QueryContext(ctx, ticketSelect+` WHERE ticket_type_id = ? ORDER BY created_at, id`, ticketTypeID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    return collectTickets(rows)
}

// CountAvailable returns how many unclaimed artifacts remain for a type.
func (r *TicketRepo) CountAvailable(ctx context.Context, ticketTypeID uint64) (int, error) {
    var n int
    err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM ticket_artifacts WHERE ticket_type_id = ? AND is_claimed = 0`,
        ticketTypeID).Scan(&n)
    return n, err
}

func collectTickets(rows *sql.Rows) ([]model.TicketArtifact, error) {
    out := make([]model.TicketArtifact, 0)
    for rows.Next() {
        var (
            t         model.TicketArtifact
            typeID    sql.NullInt64
            claimedBy sql.NullInt64
            claimedAt sql.NullTime
        )
        if err := rows.Scan(&t.ID, &t.EventID, &typeID, &t.ObjectKey, &t.PageNumber,
            &t.IsClaimed, &claimedBy, &claimedAt, &t.CreatedAt); err != nil {
            return nil, err
        }
        if typeID.Valid {
            v := uint64(typeID.Int64)
            t.TicketTypeID = &v
        }
        if claimedBy.Valid {
            v := uint64(claimedBy.Int64)
            t.ClaimedBy = &v
        }
        if claimedAt.Valid {
            v := claimedAt.Time.UTC()
            t.ClaimedAt = &v
        }
        out = append(out, t)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}
