package storage

import (
	"fmt"
	"path"
	"strings"
)

// ContentTypePDF is the content type for every artifact and staging blob.
const ContentTypePDF = "application/pdf"

// StagingKey builds the object key for an uploaded source document that
// has not been committed yet. id is the ingest session ULID.
func StagingKey(id string) string {
	return fmt.Sprintf("staging/%s.pdf", id)
}

// TicketKey builds the object key for a committed single-page artifact.
func TicketKey(eventID, ticketTypeID uint64, sessionID string, page int) string {
	return fmt.Sprintf("tickets/%d/%d/%s-page-%d.pdf", eventID, ticketTypeID, sessionID, page)
}

// ParseTicketKey extracts the event ID segment from an artifact key.
// Used by audit tooling; returns false for staging or foreign keys.
func ParseTicketKey(key string) (eventID string, ok bool) {
	if strings.ToLower(path.Ext(key)) != ".pdf" {
		return "", false
	}
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != "tickets" {
		return "", false
	}
	return parts[1], true
}
