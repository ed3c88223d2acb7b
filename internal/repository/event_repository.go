package repository

import (
    "context"
    "database/sql"

    "github.com/gateleaf/ticket-engine/internal/model"
)

// EventRepo provides CRUD operations for events.  The claimed_count
// column is never written here; it is owned by the allocation
// transactions and the reconciliation routine.
type EventRepo struct {
    db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying handle for callers that need to begin a
// transaction spanning multiple repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

const eventSelect = `SELECT id, name, event_date, capacity, claimed_count, created_at, updated_at FROM events`

// Create inserts an event and populates the generated ID and timestamps.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
    const q = `INSERT INTO events (name, event_date, capacity) VALUES (?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, ev.Name, ev.EventDate.UTC().Format("2006-01-02 15:04:05"), ev.Capacity)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    ev.ID = uint64(id)
    return r.db.QueryRowContext(ctx, eventSelect+` WHERE id = ?`, ev.ID).Scan(
        &ev.ID, &ev.Name, &ev.EventDate, &ev.Capacity, &ev.ClaimedCount, &ev.CreatedAt, &ev.UpdatedAt,
    )
}

// GetByID returns one event.  sql.ErrNoRows when absent.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
    var ev model.Event
    err := r.db.QueryRowContext(ctx, eventSelect+` WHERE id = ?`, id).Scan(
        &ev.ID, &ev.Name, &ev.EventDate, &ev.Capacity, &ev.ClaimedCount, &ev.CreatedAt, &ev.UpdatedAt,
    )
    return ev, err
}

// List returns all events ordered by date ascending.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
    rows, err := r.db.QueryContext(ctx, eventSelect+` ORDER BY event_date, id`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Event, 0)
    for rows.Next() {
        var ev model.Event
        if err := rows.Scan(&ev.ID, &ev.Name, &ev.EventDate, &ev.Capacity, &ev.ClaimedCount, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
            return nil, err
        }
        out = append(out, ev)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// UpdateCapacity changes the capacity of an event.  Lowering capacity
// below the current claimed_count is rejected with ErrConflict since it
// would make invariant claimed_count <= capacity unsatisfiable.
func (r *EventRepo) UpdateCapacity(ctx context.Context, id uint64, capacity uint32) error {
    const q = `UPDATE events SET capacity = ? WHERE id = ? AND claimed_count <= ?`
    res, err := r.db.ExecContext(ctx, q, capacity, id, capacity)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 1 {
        return nil
    }
    // Distinguish missing event from a capacity conflict.
    if _, err := r.GetByID(ctx, id); err != nil {
        return err
    }
    return ErrConflict
}

// Availability returns the fast-read aggregate for one event, straight
// from the events row.  The counter cache sits in front of this.
func (r *EventRepo) Availability(ctx context.Context, id uint64) (model.Availability, error) {
    ev, err := r.GetByID(ctx, id)
    if err != nil {
        return model.Availability{}, err
    }
    av := model.Availability{EventID: ev.ID, Capacity: ev.Capacity, Claimed: ev.ClaimedCount}
    if ev.Capacity > ev.ClaimedCount {
        av.Remaining = ev.Capacity - ev.ClaimedCount
    }
    return av, nil
}

// Delete removes an event.  Deletion cascades to ticket types, artifacts
// and ingest sessions via foreign keys, but is refused while any claim
// row exists for the event.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
    var claims int
    if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticket_claims WHERE event_id = ?`, id).Scan(&claims); err != nil {
        return err
    }
    if claims > 0 {
        return ErrConflict
    }
    res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
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
