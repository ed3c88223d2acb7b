package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/gateleaf/ticket-engine/internal/model"
)

// AllocationStore groups every statement that participates in a claim,
// unclaim, admin assignment or artifact deletion.  All of them run
// against the transaction carried in the context when one is open, so
// the allocator can compose the three-way mutation (artifact flag, claim
// row, counter) as a single atomic unit.  Methods called outside WithTx
// fall back to the pooled handle, which is fine for reads.
type AllocationStore struct {
    db *sql.DB
}

// NewAllocationStore returns an AllocationStore bound to the given database.
func NewAllocationStore(db *sql.DB) *AllocationStore { return &AllocationStore{db: db} }

type txKey struct{}

// WithTx begins a transaction, stores it in the context and runs fn.
// The transaction commits only when fn returns nil; any error rolls the
// whole unit back so partial application of a claim is impossible.
func (s *AllocationStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
    ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
    QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
    QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *AllocationStore) q(ctx context.Context) querier {
    if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
        return tx
    }
    return s.db
}

// EventByID loads an event row.  Returns sql.ErrNoRows when absent.
func (s *AllocationStore) EventByID(ctx context.Context, id uint64) (model.Event, error) {
    const q = `SELECT id, name, event_date, capacity, claimed_count, created_at, updated_at
               FROM events WHERE id = ?`
    var ev model.Event
    err := s.q(ctx).QueryRowContext(ctx, q, id).Scan(
        &ev.ID, &ev.Name, &ev.EventDate, &ev.Capacity, &ev.ClaimedCount, &ev.CreatedAt, &ev.UpdatedAt,
    )
    return ev, err
}

// TicketTypeByID loads a ticket type and parses its tier criteria.  A
// criteria column that fails to parse is surfaced as ErrConflict so a
// corrupted row never silently widens eligibility.
func (s *AllocationStore) TicketTypeByID(ctx context.Context, id uint64) (model.TicketType, error) {
    const q = `SELECT id, event_id, name, price_cents, quantity, tier_criteria, created_at
               FROM ticket_types WHERE id = ?`
    var (
        tt  model.TicketType
        raw string
    )
    err := s.q(ctx).QueryRowContext(ctx, q, id).Scan(
        &tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &tt.Quantity, &raw, &tt.CreatedAt,
    )
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

// UserByID loads a user row.  Returns sql.ErrNoRows when absent.
func (s *AllocationStore) UserByID(ctx context.Context, id uint64) (model.User, error) {
    return scanUser(s.q(ctx).QueryRowContext(ctx,
        userSelect+` WHERE id = ? LIMIT 1`, id))
}

// UserByEmail resolves a user by normalized email for admin assignment.
func (s *AllocationStore) UserByEmail(ctx context.Context, email string) (model.User, error) {
    return scanUser(s.q(ctx).QueryRowContext(ctx,
        userSelect+` WHERE email = ? LIMIT 1`, normalizeEmail(email)))
}

// HasClaim reports whether the user already holds a claim for the event.
// This is a courtesy precheck for a friendlier error; the unique key on
// (user_id, event_id) remains the authority under concurrency.
func (s *AllocationStore) HasClaim(ctx context.Context, userID, eventID uint64) (bool, error) {
    const q = `SELECT EXISTS(SELECT 1 FROM ticket_claims WHERE user_id = ? AND event_id = ?)`
    var exists bool
    err := s.q(ctx).QueryRowContext(ctx, q, userID, eventID).Scan(&exists)
    return exists, err
}

// OldestAvailableTicket selects the oldest unclaimed artifact of the
// ticket type, locking the row for the duration of the transaction.
// SKIP LOCKED keeps concurrent claimants from queueing on the same row:
// each transaction locks a distinct candidate or sees none left.
// Returns sql.ErrNoRows when the pool is empty.
func (s *AllocationStore) OldestAvailableTicket(ctx context.Context, ticketTypeID uint64) (model.TicketArtifact, error) {
    const q = `SELECT id, event_id, ticket_type_id, object_key, page_number, is_claimed, claimed_by, claimed_at, created_at
               FROM ticket_artifacts
               WHERE ticket_type_id = ? AND is_claimed = 0
               ORDER BY created_at, id
               LIMIT 1
               FOR UPDATE SKIP LOCKED`
    return scanTicket(s.q(ctx).QueryRowContext(ctx, q, ticketTypeID))
}

// TicketForUpdate loads one artifact row under an exclusive lock.
func (s *AllocationStore) TicketForUpdate(ctx context.Context, ticketID uint64) (model.TicketArtifact, error) {
    const q = `SELECT id, event_id, ticket_type_id, object_key, page_number, is_claimed, claimed_by, claimed_at, created_at
               FROM ticket_artifacts WHERE id = ? FOR UPDATE`
    return scanTicket(s.q(ctx).QueryRowContext(ctx, q, ticketID))
}

// MarkTicketClaimed flips one artifact to claimed, conditional on it
// still being unclaimed.  This conditional update is the authoritative
// anti-double-assignment mechanism: it returns false when another
// transaction got there first, regardless of what any counter says.
func (s *AllocationStore) MarkTicketClaimed(ctx context.Context, ticketID, userID uint64, at time.Time) (bool, error) {
    const q = `UPDATE ticket_artifacts
               SET is_claimed = 1, claimed_by = ?, claimed_at = ?
               WHERE id = ? AND is_claimed = 0`
    res, err := s.q(ctx).ExecContext(ctx, q, userID, at.UTC().Format("2006-01-02 15:04:05"), ticketID)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// ResetTicket returns an artifact to the available state after its claim
// row has been removed in the same transaction.
func (s *AllocationStore) ResetTicket(ctx context.Context, ticketID uint64) error {
    const q = `UPDATE ticket_artifacts
               SET is_claimed = 0, claimed_by = NULL, claimed_at = NULL
               WHERE id = ?`
    _, err := s.q(ctx).ExecContext(ctx, q, ticketID)
    return err
}

// DeleteTicket removes the artifact row.  Blob cleanup is the caller's
// concern and happens after commit; the database row is authoritative.
func (s *AllocationStore) DeleteTicket(ctx context.Context, ticketID uint64) error {
    _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM ticket_artifacts WHERE id = ?`, ticketID)
    return err
}

// InsertClaim creates the claim row and populates the generated ID.
// Duplicate-key violations are mapped to sentinels by which unique key
// could have fired: the (user_id, event_id) key means the user already
// claimed, the ticket_id key means the artifact is double-referenced.
func (s *AllocationStore) InsertClaim(ctx context.Context, claim *model.TicketClaim) error {
    const q = `INSERT INTO ticket_claims (user_id, event_id, ticket_id, ticket_type_id, claimed_at)
               VALUES (?, ?, ?, ?, ?)`
    res, err := s.q(ctx).ExecContext(ctx, q,
        claim.UserID, claim.EventID, claim.TicketID, claim.TicketTypeID,
        claim.ClaimedAt.UTC().Format("2006-01-02 15:04:05"))
    if err != nil {
        if isDuplicateKey(err) {
            if strings.Contains(err.Error(), "uq_claims_ticket") {
                return ErrTicketReferenced
            }
            return ErrDuplicateClaim
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    claim.ID = uint64(id)
    return nil
}

// ClaimByID loads one claim row.  Returns sql.ErrNoRows when absent,
// which unclaim relies on for idempotence.
func (s *AllocationStore) ClaimByID(ctx context.Context, id uint64) (model.TicketClaim, error) {
    const q = `SELECT id, user_id, event_id, ticket_id, ticket_type_id, claimed_at
               FROM ticket_claims WHERE id = ?`
    var cl model.TicketClaim
    err := s.q(ctx).QueryRowContext(ctx, q, id).Scan(
        &cl.ID, &cl.UserID, &cl.EventID, &cl.TicketID, &cl.TicketTypeID, &cl.ClaimedAt,
    )
    return cl, err
}

// ClaimByTicket loads the claim referencing the given artifact, if any.
func (s *AllocationStore) ClaimByTicket(ctx context.Context, ticketID uint64) (model.TicketClaim, error) {
    const q = `SELECT id, user_id, event_id, ticket_id, ticket_type_id, claimed_at
               FROM ticket_claims WHERE ticket_id = ?`
    var cl model.TicketClaim
    err := s.q(ctx).QueryRowContext(ctx, q, ticketID).Scan(
        &cl.ID, &cl.UserID, &cl.EventID, &cl.TicketID, &cl.TicketTypeID, &cl.ClaimedAt,
    )
    return cl, err
}

// DeleteClaim removes a claim row and reports whether a row was actually
// deleted.  A false return on the second invocation is what keeps
// unclaim idempotent: no row deleted, no counter decrement.
func (s *AllocationStore) DeleteClaim(ctx context.Context, id uint64) (bool, error) {
    res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM ticket_claims WHERE id = ?`, id)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// IncrementClaimedCount bumps the aggregate, conditional on capacity.
// A false return aborts the surrounding transaction with a capacity
// error, rolling back the artifact flag and claim row with it.
func (s *AllocationStore) IncrementClaimedCount(ctx context.Context, eventID uint64) (bool, error) {
    const q = `UPDATE events SET claimed_count = claimed_count + 1
               WHERE id = ? AND claimed_count < capacity`
    res, err := s.q(ctx).ExecContext(ctx, q, eventID)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// DecrementClaimedCount lowers the aggregate, guarded against going
// negative.  A false return means the counter had drifted below the
// true claim count; callers log it and let reconciliation heal it.
func (s *AllocationStore) DecrementClaimedCount(ctx context.Context, eventID uint64) (bool, error) {
    const q = `UPDATE events SET claimed_count = claimed_count - 1
               WHERE id = ? AND claimed_count > 0`
    res, err := s.q(ctx).ExecContext(ctx, q, eventID)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// RecountClaims overwrites claimed_count with the true count of claim
// rows and returns the recomputed value.  Safe to run at any time.
func (s *AllocationStore) RecountClaims(ctx context.Context, eventID uint64) (int, error) {
    const upd = `UPDATE events e
                 SET e.claimed_count = (SELECT COUNT(*) FROM ticket_claims c WHERE c.event_id = e.id)
                 WHERE e.id = ?`
    if _, err := s.q(ctx).ExecContext(ctx, upd, eventID); err != nil {
        return 0, err
    }
    var count int
    err := s.q(ctx).QueryRowContext(ctx, `SELECT claimed_count FROM events WHERE id = ?`, eventID).Scan(&count)
    return count, err
}

func scanTicket(row *sql.Row) (model.TicketArtifact, error) {
    var (
        t         model.TicketArtifact
        typeID    sql.NullInt64
        claimedBy sql.NullInt64
        claimedAt sql.NullTime
    )
    err := row.Scan(&t.ID, &t.EventID, &typeID, &t.ObjectKey, &t.PageNumber,
        &t.IsClaimed, &claimedBy, &claimedAt, &t.CreatedAt)
    if err != nil {
        return model.TicketArtifact{}, err
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
    return t, nil
}
