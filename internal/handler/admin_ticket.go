package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gateleaf/ticket-engine/internal/allocator"
	"github.com/gateleaf/ticket-engine/internal/config"
	"github.com/gateleaf/ticket-engine/internal/counter"
	"github.com/gateleaf/ticket-engine/internal/queue"
	"github.com/gateleaf/ticket-engine/internal/repository"
	queue_publisher "github.com/gateleaf/ticket-engine/internal/service"
	"github.com/gateleaf/ticket-engine/internal/storage"
)

// AdminTicketHandler serves artifact-level administration: manual
// assignment, forced release, deletion and inspection.
type AdminTicketHandler struct {
	Cfg     config.Config
	Alloc   *allocator.Allocator
	Tickets *repository.TicketRepo
	Blobs   storage.BlobStore
	Counter *counter.Cache
}

func NewAdminTicketHandler(cfg config.Config, alloc *allocator.Allocator, tickets *repository.TicketRepo, blobs storage.BlobStore, cnt *counter.Cache) *AdminTicketHandler {
	return &AdminTicketHandler{Cfg: cfg, Alloc: alloc, Tickets: tickets, Blobs: blobs, Counter: cnt}
}

// ListByType lists a ticket type's artifacts, oldest first.
func (h *AdminTicketHandler) ListByType(c echo.Context) error {
	typeID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket type id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tickets, err := h.Tickets.ListByType(ctx, typeID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]ticketPart, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, toTicketPart(t))
	}
	return c.JSON(http.StatusOK, out)
}

type assignReq struct {
	Email string `json:"email"`
}

// Assign hands a specific unclaimed artifact to the user with the
// given email. Capacity and one-claim-per-user still apply; tier
// criteria do not.
func (h *AdminTicketHandler) Assign(c echo.Context) error {
	ticketID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	var req assignReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	claim, err := h.Alloc.AdminAssign(ctx, ticketID, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return claimError(c, err)
	}
	h.publish(claim.EventID, queue.AllocationEvent{
		Kind:         queue.KindAssigned,
		ClaimID:      claim.ID,
		UserID:       claim.UserID,
		EventID:      claim.EventID,
		TicketID:     claim.TicketID,
		TicketTypeID: claim.TicketTypeID,
	})
	return c.JSON(http.StatusCreated, toClaimPart(claim))
}

// Unclaim force-releases whatever claim holds the artifact.
func (h *AdminTicketHandler) Unclaim(c echo.Context) error {
	ticketID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	released, err := h.Alloc.AdminUnclaim(ctx, ticketID)
	if err != nil {
		return claimError(c, err)
	}
	h.publish(released.EventID, queue.AllocationEvent{
		Kind:         queue.KindReleased,
		ClaimID:      released.ID,
		UserID:       released.UserID,
		EventID:      released.EventID,
		TicketID:     released.TicketID,
		TicketTypeID: released.TicketTypeID,
	})
	return c.NoContent(http.StatusNoContent)
}

// Delete removes an artifact. A claimed artifact cascades: the claim
// is released and the counter lowered in the same transaction, then
// the blob is deleted best effort after commit.
func (h *AdminTicketHandler) Delete(c echo.Context) error {
	ticketID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	ticket, err := h.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return claimError(c, allocator.ErrTicketNotFound)
	}
	objectKey, hadClaim, err := h.Alloc.DeleteTicket(ctx, ticketID)
	if err != nil {
		return claimError(c, err)
	}
	if hadClaim {
		h.Counter.Invalidate(ctx, ticket.EventID)
	}
	if err := h.Blobs.Delete(ctx, objectKey); err != nil {
		log.Printf("admin: blob delete failed key=%s: %v", objectKey, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SignedURL returns a presigned download URL for any artifact, claimed
// or not. Admin-only counterpart of the subscriber download endpoint.
func (h *AdminTicketHandler) SignedURL(c echo.Context) error {
	ticketID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ticket, err := h.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return claimError(c, allocator.ErrTicketNotFound)
	}
	ttl := time.Duration(h.Cfg.SignedURLTTLMin) * time.Minute
	url, err := h.Blobs.SignedReadURL(ctx, ticket.ObjectKey, ttl)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sign url failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url, "expires_in_sec": int(ttl / time.Second)})
}

func (h *AdminTicketHandler) publish(eventID uint64, ev queue.AllocationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.Counter.Invalidate(ctx, eventID)
	ev.OccurredAt = time.Now().UTC().Format("2006-01-02 15:04:05")
	if err := queue_publisher.PublishAllocation(ctx, ev); err != nil {
		log.Printf("admin: publish %s event failed: %v", ev.Kind, err)
	}
}
