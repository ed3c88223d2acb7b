package repository

import (
    "context"
    "database/sql"

    "github.com/gateleaf/ticket-engine/internal/model"
)

// TicketTypeRepo provides CRUD operations for ticket types.  Tier
// criteria are stored as a comma-separated list of registry tiers and
// parsed on every read.
type TicketTypeRepo struct {
    db *sql.DB
}

// NewTicketTypeRepo returns a new TicketTypeRepo bound to the given database.
func NewTicketTypeRepo(db *sql.DB) *TicketTypeRepo { return &TicketTypeRepo{db: db} }

const ticketTypeSelect = `SELECT id, event_id, name, price_cents, quantity, tier_criteria, created_at FROM ticket_types`

// Create inserts a ticket type and populates the generated ID.
func (r *TicketTypeRepo) Create(ctx context.Context, tt *model.TicketType) error {
    const q = `INSERT INTO ticket_types (event_id, name, price_cents, quantity, tier_criteria)
               VALUES (?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, tt.EventID, tt.Name, tt.PriceCents, tt.Quantity, tt.Criteria.String())
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    tt.ID = uint64(id)
    return nil
}

// GetByID returns one ticket type with parsed criteria.
func (r *TicketTypeRepo) GetByID(ctx context.Context, id uint64) (model.TicketType, error) {
    return scanTicketType(r.db.QueryRowContext(ctx, ticketTypeSelect+` WHERE id = ?`, id))
}

// ListByEvent returns all ticket types for an event.
func (r *TicketTypeRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.TicketType, error) {
    rows, err := r.db.QueryContext(ctx, ticketTypeSelect+` WHERE event_id = ? ORDER BY id`, eventID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.TicketType, 0)
    for rows.Next() {
        var (
            tt  model.TicketType
            raw string
        )
        if err := rows.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &tt.Quantity, &raw, &tt.CreatedAt); err != nil {
            return nil, err
        }
        crit, ok := model.ParseTierCriteria(raw)
        if !ok {
            return nil, ErrConflict
        }
        tt.Criteria = crit
        out = append(out, tt)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// UpdateCriteria replaces the tier criteria of a ticket type.
func (r *TicketTypeRepo) UpdateCriteria(ctx context.Context, id uint64, crit model.TierCriteria) error {
    res, err := r.db.ExecContext(ctx, `UPDATE ticket_types SET tier_criteria = ? WHERE id = ?`, crit.String(), id)
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

func scanTicketType(row *sql.Row) (model.TicketType, error) {
    var (
        tt  model.TicketType
        raw string
    )
    err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &tt.Quantity, &raw, &tt.CreatedAt)
    if err != nil {
        return model.TicketType{}, err
    }
    crit, ok := model.ParseTierCriteria(raw)
    if !ok {
        return model.TicketType{}, ErrConflict
    }
    tt.Criteria = crit
    return tt, nil
}
