// Package allocator implements the claim allocation engine: the single
// atomic operation that transitions one available ticket artifact to
// claimed for one user, and its inverse. Correctness never depends on
// in-process locks; every guarantee derives from the storage layer's
// conditional updates and unique keys, executed inside one transaction
// per operation.
package allocator

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/gateleaf/ticket-engine/internal/clock"
	"github.com/gateleaf/ticket-engine/internal/model"
	"github.com/gateleaf/ticket-engine/internal/repository"
)

// Store is the transactional persistence surface the allocator runs on.
// Methods invoked inside the WithTx callback operate on that
// transaction; repository.AllocationStore is the MySQL implementation.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	EventByID(ctx context.Context, id uint64) (model.Event, error)
	TicketTypeByID(ctx context.Context, id uint64) (model.TicketType, error)
	UserByID(ctx context.Context, id uint64) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)

	HasClaim(ctx context.Context, userID, eventID uint64) (bool, error)
	OldestAvailableTicket(ctx context.Context, ticketTypeID uint64) (model.TicketArtifact, error)
	TicketForUpdate(ctx context.Context, ticketID uint64) (model.TicketArtifact, error)
	MarkTicketClaimed(ctx context.Context, ticketID, userID uint64, at time.Time) (bool, error)
	ResetTicket(ctx context.Context, ticketID uint64) error
	DeleteTicket(ctx context.Context, ticketID uint64) error

	InsertClaim(ctx context.Context, claim *model.TicketClaim) error
	ClaimByID(ctx context.Context, id uint64) (model.TicketClaim, error)
	ClaimByTicket(ctx context.Context, ticketID uint64) (model.TicketClaim, error)
	DeleteClaim(ctx context.Context, id uint64) (bool, error)

	IncrementClaimedCount(ctx context.Context, eventID uint64) (bool, error)
	DecrementClaimedCount(ctx context.Context, eventID uint64) (bool, error)
	RecountClaims(ctx context.Context, eventID uint64) (int, error)
}

// Allocator exposes claim, unclaim, admin assignment, artifact deletion
// and reconciliation. It is stateless and safe for concurrent use from
// any number of request goroutines and server instances.
type Allocator struct {
	store Store
	clock clock.Clock
}

// New constructs an Allocator over the given store.
func New(store Store, clk clock.Clock) *Allocator {
	if clk == nil {
		clk = clock.New()
	}
	return &Allocator{store: store, clock: clk}
}

// Claim atomically allocates the oldest available artifact of the
// ticket type to the user. Preconditions (no existing claim for the
// event, eligible tier, free artifact, capacity headroom) are all
// enforced inside one transaction; on any failure nothing is applied.
func (a *Allocator) Claim(ctx context.Context, eventID, ticketTypeID, userID uint64) (model.TicketClaim, error) {
	var claim model.TicketClaim
	err := a.store.WithTx(ctx, func(ctx context.Context) error {
		tt, err := a.store.TicketTypeByID(ctx, ticketTypeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTicketNotFound
			}
			return err
		}
		if tt.EventID != eventID {
			return ErrTicketNotFound
		}
		user, err := a.store.UserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}
		if !tt.Criteria.Allows(user.Tier) {
			return ErrIneligibleTier
		}
		// Courtesy precheck for a specific error; the unique key on
		// (user_id, event_id) stays authoritative under races.
		if has, err := a.store.HasClaim(ctx, userID, eventID); err != nil {
			return err
		} else if has {
			return ErrAlreadyClaimed
		}

		ticket, err := a.store.OldestAvailableTicket(ctx, ticketTypeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoTicketAvailable
			}
			return err
		}
		now := a.clock.Now()
		claim = model.TicketClaim{
			UserID:       userID,
			EventID:      eventID,
			TicketID:     ticket.ID,
			TicketTypeID: ticketTypeID,
			ClaimedAt:    now,
		}
		return a.finishClaim(ctx, &claim, now)
	})
	if err != nil {
		return model.TicketClaim{}, err
	}
	return claim, nil
}

// AdminAssign allocates one specific artifact to the user resolved by
// email. Capacity, availability and one-claim-per-user hold exactly as
// for Claim; the tier check is intentionally skipped, assignment is an
// administrative override.
func (a *Allocator) AdminAssign(ctx context.Context, ticketID uint64, email string) (model.TicketClaim, error) {
	var claim model.TicketClaim
	err := a.store.WithTx(ctx, func(ctx context.Context) error {
		user, err := a.store.UserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}
		ticket, err := a.store.TicketForUpdate(ctx, ticketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTicketNotFound
			}
			return err
		}
		if ticket.IsClaimed {
			return ErrTicketClaimed
		}
		if ticket.TicketTypeID == nil {
			return ErrTicketNotFound
		}
		if has, err := a.store.HasClaim(ctx, user.ID, ticket.EventID); err != nil {
			return err
		} else if has {
			return ErrAlreadyClaimed
		}
		now := a.clock.Now()
		claim = model.TicketClaim{
			UserID:       user.ID,
			EventID:      ticket.EventID,
			TicketID:     ticket.ID,
			TicketTypeID: *ticket.TicketTypeID,
			ClaimedAt:    now,
		}
		return a.finishClaim(ctx, &claim, now)
	})
	if err != nil {
		return model.TicketClaim{}, err
	}
	return claim, nil
}

// finishClaim applies the three-way mutation for an already-selected
// artifact: conditional artifact flag, claim row, counter increment.
// Runs inside the caller's transaction.
func (a *Allocator) finishClaim(ctx context.Context, claim *model.TicketClaim, now time.Time) error {
	ok, err := a.store.MarkTicketClaimed(ctx, claim.TicketID, claim.UserID, now)
	if err != nil {
		return err
	}
	if !ok {
		// The row was locked and read as available in this same
		// transaction; a refused conditional update here means the
		// storage layer broke its contract.
		log.Printf("allocator: conditional claim refused for locked ticket ticket_id=%d", claim.TicketID)
		return ErrConsistency
	}
	if err := a.store.InsertClaim(ctx, claim); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateClaim):
			return ErrAlreadyClaimed
		case errors.Is(err, repository.ErrTicketReferenced):
			log.Printf("allocator: artifact double-reference detected ticket_id=%d", claim.TicketID)
			return ErrConsistency
		}
		return err
	}
	ok, err = a.store.IncrementClaimedCount(ctx, claim.EventID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCapacityExceeded
	}
	return nil
}

// Unclaim releases a claim and returns the artifact to the pool. When
// callerID is non-zero the claim must belong to that user. Idempotent:
// a second call finds no claim row, returns ErrClaimNotFound and
// adjusts nothing.
func (a *Allocator) Unclaim(ctx context.Context, claimID, callerID uint64) (model.TicketClaim, error) {
	var released model.TicketClaim
	err := a.store.WithTx(ctx, func(ctx context.Context) error {
		claim, err := a.store.ClaimByID(ctx, claimID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrClaimNotFound
			}
			return err
		}
		if callerID != 0 && claim.UserID != callerID {
			return ErrNotOwner
		}
		released = claim
		return a.finishUnclaim(ctx, claim)
	})
	if err != nil {
		return model.TicketClaim{}, err
	}
	return released, nil
}

// AdminUnclaim releases whatever claim currently references the given
// artifact. ErrClaimNotFound when the artifact is unclaimed.
func (a *Allocator) AdminUnclaim(ctx context.Context, ticketID uint64) (model.TicketClaim, error) {
	var released model.TicketClaim
	err := a.store.WithTx(ctx, func(ctx context.Context) error {
		claim, err := a.store.ClaimByTicket(ctx, ticketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrClaimNotFound
			}
			return err
		}
		released = claim
		return a.finishUnclaim(ctx, claim)
	})
	if err != nil {
		return model.TicketClaim{}, err
	}
	return released, nil
}

// finishUnclaim deletes the claim row, resets the artifact and lowers
// the counter, all inside the caller's transaction. The DeleteClaim
// rows-affected check is what makes double unclaims decrement once.
func (a *Allocator) finishUnclaim(ctx context.Context, claim model.TicketClaim) error {
	deleted, err := a.store.DeleteClaim(ctx, claim.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrClaimNotFound
	}
	if err := a.store.ResetTicket(ctx, claim.TicketID); err != nil {
		return err
	}
	ok, err := a.store.DecrementClaimedCount(ctx, claim.EventID)
	if err != nil {
		return err
	}
	if !ok {
		// Counter already at zero with a claim row just removed:
		// drift from some non-atomic legacy path. Reconciliation
		// heals it; the release itself still stands.
		log.Printf("allocator: claimed_count underflow prevented event_id=%d claim_id=%d", claim.EventID, claim.ID)
	}
	return nil
}

// DeleteTicket removes an artifact. Deleting a claimed artifact
// cascade-removes its claim and decrements the counter in the same
// transaction, keeping every invariant intact. The artifact's blob key
// is returned so the caller can delete the stored document after
// commit; a blob deletion failure must not roll back the row deletion.
func (a *Allocator) DeleteTicket(ctx context.Context, ticketID uint64) (objectKey string, hadClaim bool, err error) {
	err = a.store.WithTx(ctx, func(ctx context.Context) error {
		ticket, err := a.store.TicketForUpdate(ctx, ticketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTicketNotFound
			}
			return err
		}
		objectKey = ticket.ObjectKey
		if ticket.IsClaimed {
			claim, err := a.store.ClaimByTicket(ctx, ticketID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					// Flag set with no claim row: invariant 1 broken.
					log.Printf("allocator: claimed artifact without claim row ticket_id=%d", ticketID)
					return ErrConsistency
				}
				return err
			}
			hadClaim = true
			if err := a.finishUnclaim(ctx, claim); err != nil {
				return err
			}
		}
		return a.store.DeleteTicket(ctx, ticketID)
	})
	if err != nil {
		return "", false, err
	}
	return objectKey, hadClaim, nil
}

// Reconcile recomputes claimed_count from the claim table and
// overwrites the aggregate. Safe to run periodically or on demand; it
// is the self-healing path for any drift the guarded adjustments
// detect.
func (a *Allocator) Reconcile(ctx context.Context, eventID uint64) (int, error) {
	if _, err := a.store.EventByID(ctx, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrEventNotFound
		}
		return 0, err
	}
	return a.store.RecountClaims(ctx, eventID)
}
