package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gateleaf/ticket-engine/internal/counter"
	"github.com/gateleaf/ticket-engine/internal/repository"
)

// PublicHandler serves the unauthenticated browse endpoints: events,
// their ticket types, and live availability.
type PublicHandler struct {
	Events  *repository.EventRepo
	Types   *repository.TicketTypeRepo
	Tickets *repository.TicketRepo
	Counter *counter.Cache
}

func NewPublicHandler(events *repository.EventRepo, types *repository.TicketTypeRepo, tickets *repository.TicketRepo, cnt *counter.Cache) *PublicHandler {
	return &PublicHandler{Events: events, Types: types, Tickets: tickets, Counter: cnt}
}

// ListEvents returns all events.
func (h *PublicHandler) ListEvents(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	events, err := h.Events.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]eventPart, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventPart(ev))
	}
	return c.JSON(http.StatusOK, out)
}

// GetEvent returns one event with its ticket types and, per type, the
// number of artifacts still available.
func (h *PublicHandler) GetEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	types, err := h.Types.ListByEvent(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	type typePart struct {
		ticketTypePart
		Available int `json:"available"`
	}
	parts := make([]typePart, 0, len(types))
	for _, tt := range types {
		avail, err := h.Tickets.CountAvailable(ctx, tt.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		parts = append(parts, typePart{ticketTypePart: toTicketTypePart(tt), Available: avail})
	}
	return c.JSON(http.StatusOK, echo.Map{"event": toEventPart(ev), "ticket_types": parts})
}

// Availability returns capacity, claimed and remaining for one event.
// Served from the Redis counter cache when available.
func (h *PublicHandler) Availability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	av, err := h.Counter.Availability(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, av)
}
