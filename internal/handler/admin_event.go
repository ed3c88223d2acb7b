package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gateleaf/ticket-engine/internal/allocator"
	"github.com/gateleaf/ticket-engine/internal/counter"
	"github.com/gateleaf/ticket-engine/internal/model"
	"github.com/gateleaf/ticket-engine/internal/repository"
)

// AdminEventHandler serves event and ticket type administration plus
// the reconcile endpoint.
type AdminEventHandler struct {
	Events  *repository.EventRepo
	Types   *repository.TicketTypeRepo
	Alloc   *allocator.Allocator
	Counter *counter.Cache
}

func NewAdminEventHandler(events *repository.EventRepo, types *repository.TicketTypeRepo, alloc *allocator.Allocator, cnt *counter.Cache) *AdminEventHandler {
	return &AdminEventHandler{Events: events, Types: types, Alloc: alloc, Counter: cnt}
}

type eventReq struct {
	Name      string `json:"name"`
	EventDate string `json:"event_date"` // "2006-01-02 15:04:05" UTC
	Capacity  uint32 `json:"capacity"`
}

// CreateEvent creates an event with a fixed capacity.
func (h *AdminEventHandler) CreateEvent(c echo.Context) error {
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Capacity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and capacity required"})
	}
	when, err := time.Parse("2006-01-02 15:04:05", req.EventDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event_date"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ev := model.Event{Name: req.Name, EventDate: when.UTC(), Capacity: req.Capacity}
	if err := h.Events.Create(ctx, &ev); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create event failed"})
	}
	return c.JSON(http.StatusCreated, toEventPart(ev))
}

type capacityReq struct {
	Capacity uint32 `json:"capacity"`
}

// UpdateCapacity changes an event's capacity. Lowering below the
// current claimed count is refused; existing claims are never broken
// by a capacity change.
func (h *AdminEventHandler) UpdateCapacity(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var req capacityReq
	if err := c.Bind(&req); err != nil || req.Capacity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Events.UpdateCapacity(ctx, id, req.Capacity); err != nil {
		switch err {
		case sql.ErrNoRows:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		case repository.ErrConflict:
			return c.JSON(http.StatusConflict, echo.Map{"error": "capacity below claimed count"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.Counter.Invalidate(ctx, id)
	return c.NoContent(http.StatusNoContent)
}

// DeleteEvent removes an event that has no claims.
func (h *AdminEventHandler) DeleteEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Events.Delete(ctx, id); err != nil {
		switch err {
		case sql.ErrNoRows:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		case repository.ErrConflict:
			return c.JSON(http.StatusConflict, echo.Map{"error": "event has claims"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	h.Counter.Invalidate(ctx, id)
	return c.NoContent(http.StatusNoContent)
}

type ticketTypeReq struct {
	Name       string `json:"name"`
	PriceCents uint32 `json:"price_cents"`
	Criteria   string `json:"criteria"` // e.g. "PLUS,VIP"
}

// CreateTicketType adds a ticket type to an event. An empty criteria
// admits every tier.
func (h *AdminEventHandler) CreateTicketType(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var req ticketTypeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	crit := model.TierCriteria{model.TierBasic, model.TierPlus, model.TierVIP}
	if strings.TrimSpace(req.Criteria) != "" {
		parsed, ok := model.ParseTierCriteria(req.Criteria)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown tier in criteria"})
		}
		crit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	tt := model.TicketType{EventID: eventID, Name: req.Name, PriceCents: req.PriceCents, Criteria: crit}
	if err := h.Types.Create(ctx, &tt); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create ticket type failed"})
	}
	return c.JSON(http.StatusCreated, toTicketTypePart(tt))
}

type criteriaReq struct {
	Criteria string `json:"criteria"`
}

// UpdateCriteria replaces a ticket type's tier criteria. Existing
// claims are unaffected; criteria gate future claims only.
func (h *AdminEventHandler) UpdateCriteria(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket type id"})
	}
	var req criteriaReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Criteria) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "criteria required"})
	}
	crit, ok := model.ParseTierCriteria(req.Criteria)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown tier in criteria"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Types.UpdateCriteria(ctx, id, crit); err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket type not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Reconcile recomputes the event's claimed count from the claim table.
func (h *AdminEventHandler) Reconcile(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	count, err := h.Alloc.Reconcile(ctx, id)
	if err != nil {
		return claimError(c, err)
	}
	h.Counter.Invalidate(ctx, id)
	return c.JSON(http.StatusOK, echo.Map{"event_id": id, "claimed_count": count})
}
