// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// allocator and handlers to distinguish between different failure
// scenarios without string matching. Row-not-found conditions are
// reported as sql.ErrNoRows, matching the underlying driver.
package repository

import (
	"errors"
	"strings"
)

// ErrEmailExists is returned when a user insert hits the unique email
// key. Handlers should translate this into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicateClaim is returned when a claim insert hits the
// UNIQUE(user_id, event_id) key, meaning the user already holds a claim
// for the event. The allocator maps this to its AlreadyClaimed error.
var ErrDuplicateClaim = errors.New("duplicate claim")

// ErrTicketReferenced is returned when a claim insert hits the
// UNIQUE(ticket_id) key. Given the conditional artifact update this
// should be unreachable; the allocator reports it as a consistency
// violation rather than swallowing it.
var ErrTicketReferenced = errors.New("ticket already referenced by a claim")

// ErrConflict is returned when a delete cannot be performed because of
// conflicting dependent state. Handlers should translate this into an
// HTTP 409 response.
var ErrConflict = errors.New("conflict")

// isDuplicateKey reports whether err is a MySQL duplicate-key error
// (error 1062). The driver does not expose a typed error for this, so
// the code is matched in the message, same as the email uniqueness
// check.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "1062")
}
