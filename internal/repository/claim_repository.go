package repository

import (
    "context"
    "database/sql"
)

// ClaimRepo provides read access to claims for display.  A claim row is
// joined with its event and artifact so subscribers see what they hold
// without extra round-trips.  Mutations go through AllocationStore.
type ClaimRepo struct {
    db *sql.DB
}

// NewClaimRepo returns a new ClaimRepo bound to the given database.
func NewClaimRepo(db *sql.DB) *ClaimRepo { return &ClaimRepo{db: db} }

// ClaimDetail is the view of a claim returned to its holder.
type ClaimDetail struct {
    ID         uint64 `json:"id"`
    EventID    uint64 `json:"event_id"`
    EventName  string `json:"event_name"`
    EventDate  string `json:"event_date"`
    TicketID   uint64 `json:"ticket_id"`
    TypeName   string `json:"ticket_type"`
    PageNumber uint32 `json:"page_number"`
    ClaimedAt  string `json:"claimed_at"`
}

// ListByUser returns all claims held by a user, newest first.
func (r *ClaimRepo) ListByUser(ctx context.Context, userID uint64) ([]ClaimDetail, error) {
    const q = `SELECT c.id, c.event_id, e.name, e.event_date, c.ticket_id, tt.name, a.page_number, c.claimed_at
               FROM ticket_claims c
               JOIN events e ON e.id = c.event_id
               JOIN ticket_types tt ON tt.id = c.ticket_type_id
               JOIN ticket_artifacts a ON a.id = c.ticket_id
               WHERE c.user_id = ?
               ORDER BY c.claimed_at DESC, c.id DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]ClaimDetail, 0)
    for rows.Next() {
        var (
            d         ClaimDetail
            eventDate sql.NullTime
            claimedAt sql.NullTime
        )
        if err := rows.Scan(&d.ID, &d.EventID, &d.EventName, &eventDate, &d.TicketID, &d.TypeName, &d.PageNumber, &claimedAt); err != nil {
            return nil, err
        }
        if eventDate.Valid {
            d.EventDate = eventDate.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
        }
        if claimedAt.Valid {
            d.ClaimedAt = claimedAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
        }
        out = append(out, d)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// GetForUser loads a claim only when it belongs to the given user.
// Returns sql.ErrNoRows otherwise so handlers do not leak existence.
func (r *ClaimRepo) GetForUser(ctx context.Context, claimID, userID uint64) (uint64, error) {
    var id uint64
    err := r.db.QueryRowContext(ctx,
        `SELECT id FROM ticket_claims WHERE id = ? AND user_id = ?`, claimID, userID).Scan(&id)
    return id, err
}
