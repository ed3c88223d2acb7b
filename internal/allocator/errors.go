package allocator

import "errors"

// Allocation errors are surfaced individually so callers can react
// specifically: "already claimed" and "sold out" need different user
// messaging and different HTTP codes. None of these are retried inside
// the engine; retry policy belongs to the caller.
var (
	// ErrAlreadyClaimed means the user already holds a claim for this
	// event. Backed by the UNIQUE(user_id, event_id) key.
	ErrAlreadyClaimed = errors.New("user already holds a claim for this event")

	// ErrIneligibleTier means the user's tier is not in the ticket
	// type's criteria.
	ErrIneligibleTier = errors.New("tier not eligible for this ticket type")

	// ErrCapacityExceeded means the event's claimed count has reached
	// its capacity.
	ErrCapacityExceeded = errors.New("event capacity exceeded")

	// ErrNoTicketAvailable means no unclaimed artifact remains for the
	// ticket type.
	ErrNoTicketAvailable = errors.New("no ticket available")

	// ErrTicketClaimed means an admin operation targeted an artifact
	// that is already claimed.
	ErrTicketClaimed = errors.New("ticket already claimed")

	// ErrClaimNotFound means the claim does not exist (anymore); the
	// second invocation of an unclaim returns this and performs no
	// further counter adjustment.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrTicketNotFound means the artifact does not exist.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrNotOwner means the claim exists but belongs to another user.
	ErrNotOwner = errors.New("claim belongs to another user")

	// ErrEventNotFound means the event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrUserNotFound means the assignment target could not be resolved.
	ErrUserNotFound = errors.New("user not found")

	// ErrConsistency marks a detected invariant violation, e.g. a
	// locked available artifact refusing the conditional claim update.
	// Should be unreachable given the transactional guarantees; it is
	// logged and surfaced, never swallowed.
	ErrConsistency = errors.New("inventory consistency violation")
)
