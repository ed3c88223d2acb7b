// Package handler defines the HTTP handlers.
package handler

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gateleaf/ticket-engine/internal/model"
)

// getUserID extracts the user_id stored by the JWT middleware and
// converts it to uint64. MapClaims decode numbers as float64, hence
// the type switch.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a numeric :param from the route.
func pathID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// ----- response DTOs shared across handlers -----

const timeLayout = "2006-01-02 15:04:05"

type eventPart struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	EventDate string `json:"event_date"`
	Capacity  uint32 `json:"capacity"`
	Claimed   uint32 `json:"claimed"`
}

func toEventPart(ev model.Event) eventPart {
	return eventPart{
		ID:        ev.ID,
		Name:      ev.Name,
		EventDate: ev.EventDate.UTC().Format(timeLayout),
		Capacity:  ev.Capacity,
		Claimed:   ev.ClaimedCount,
	}
}

type ticketTypePart struct {
	ID         uint64 `json:"id"`
	EventID    uint64 `json:"event_id"`
	Name       string `json:"name"`
	PriceCents uint32 `json:"price_cents"`
	Criteria   string `json:"criteria"`
}

func toTicketTypePart(tt model.TicketType) ticketTypePart {
	return ticketTypePart{
		ID:         tt.ID,
		EventID:    tt.EventID,
		Name:       tt.Name,
		PriceCents: tt.PriceCents,
		Criteria:   tt.Criteria.String(),
	}
}

type claimPart struct {
	ID           uint64 `json:"id"`
	UserID       uint64 `json:"user_id"`
	EventID      uint64 `json:"event_id"`
	TicketID     uint64 `json:"ticket_id"`
	TicketTypeID uint64 `json:"ticket_type_id"`
	ClaimedAt    string `json:"claimed_at"`
}

func toClaimPart(cl model.TicketClaim) claimPart {
	return claimPart{
		ID:           cl.ID,
		UserID:       cl.UserID,
		EventID:      cl.EventID,
		TicketID:     cl.TicketID,
		TicketTypeID: cl.TicketTypeID,
		ClaimedAt:    cl.ClaimedAt.UTC().Format(timeLayout),
	}
}

type ticketPart struct {
	ID           uint64  `json:"id"`
	EventID      uint64  `json:"event_id"`
	TicketTypeID *uint64 `json:"ticket_type_id"`
	ObjectKey    string  `json:"object_key"`
	PageNumber   uint32  `json:"page_number"`
	IsClaimed    bool    `json:"is_claimed"`
	ClaimedBy    *uint64 `json:"claimed_by,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func toTicketPart(t model.TicketArtifact) ticketPart {
	return ticketPart{
		ID:           t.ID,
		EventID:      t.EventID,
		TicketTypeID: t.TicketTypeID,
		ObjectKey:    t.ObjectKey,
		PageNumber:   t.PageNumber,
		IsClaimed:    t.IsClaimed,
		ClaimedBy:    t.ClaimedBy,
		CreatedAt:    t.CreatedAt.UTC().Format(timeLayout),
	}
}
