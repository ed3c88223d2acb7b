package handler

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gateleaf/ticket-engine/internal/allocator"
	"github.com/gateleaf/ticket-engine/internal/config"
	"github.com/gateleaf/ticket-engine/internal/counter"
	"github.com/gateleaf/ticket-engine/internal/model"
	"github.com/gateleaf/ticket-engine/internal/queue"
	"github.com/gateleaf/ticket-engine/internal/repository"
	queue_publisher "github.com/gateleaf/ticket-engine/internal/service"
	"github.com/gateleaf/ticket-engine/internal/storage"
)

// ClaimHandler serves the subscriber-facing claim endpoints. The
// allocator does the transactional work; this layer translates errors
// to status codes, invalidates the availability cache and publishes
// audit events after commit.
type ClaimHandler struct {
	Cfg     config.Config
	Alloc   *allocator.Allocator
	Claims  *repository.ClaimRepo
	Tickets *repository.TicketRepo
	Blobs   storage.BlobStore
	Counter *counter.Cache
}

func NewClaimHandler(cfg config.Config, alloc *allocator.Allocator, claims *repository.ClaimRepo, tickets *repository.TicketRepo, blobs storage.BlobStore, cnt *counter.Cache) *ClaimHandler {
	return &ClaimHandler{Cfg: cfg, Alloc: alloc, Claims: claims, Tickets: tickets, Blobs: blobs, Counter: cnt}
}

type claimReq struct {
	EventID      uint64 `json:"event_id"`
	TicketTypeID uint64 `json:"ticket_type_id"`
}

// Create claims one ticket of the requested type for the caller.
func (h *ClaimHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req claimReq
	if err := c.Bind(&req); err != nil || req.EventID == 0 || req.TicketTypeID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id and ticket_type_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	claim, err := h.Alloc.Claim(ctx, req.EventID, req.TicketTypeID, uid)
	if err != nil {
		return claimError(c, err)
	}
	h.afterChange(claim, queue.KindClaimed)
	return c.JSON(http.StatusCreated, toClaimPart(claim))
}

// Delete releases the caller's claim. Idempotence comes from the
// allocator: a repeated release reports 404 and changes nothing.
func (h *ClaimHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	claimID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid claim id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	released, err := h.Alloc.Unclaim(ctx, claimID, uid)
	if err != nil {
		return claimError(c, err)
	}
	h.afterChange(released, queue.KindReleased)
	return c.NoContent(http.StatusNoContent)
}

// List returns the caller's claims with event and ticket details.
func (h *ClaimHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	claims, err := h.Claims.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, claims)
}

// Download returns a short-lived presigned URL for the artifact behind
// the caller's claim.
func (h *ClaimHandler) Download(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	claimID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid claim id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ticketID, err := h.Claims.GetForUser(ctx, claimID, uid)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "claim not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	ticket, err := h.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	ttl := time.Duration(h.Cfg.SignedURLTTLMin) * time.Minute
	url, err := h.Blobs.SignedReadURL(ctx, ticket.ObjectKey, ttl)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sign url failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url, "expires_in_sec": int(ttl / time.Second)})
}

// afterChange runs the post-commit side effects: cache invalidation and
// the audit event. Both are best effort; the allocation already stands.
func (h *ClaimHandler) afterChange(claim model.TicketClaim, kind string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.Counter.Invalidate(ctx, claim.EventID)
	ev := queue.AllocationEvent{
		Kind:         kind,
		ClaimID:      claim.ID,
		UserID:       claim.UserID,
		EventID:      claim.EventID,
		TicketID:     claim.TicketID,
		TicketTypeID: claim.TicketTypeID,
		OccurredAt:   time.Now().UTC().Format("2006-01-02 15:04:05"),
	}
	if err := queue_publisher.PublishAllocation(ctx, ev); err != nil {
		log.Printf("claim: publish %s event failed: %v", kind, err)
	}
}

// claimError maps allocator errors to HTTP responses. Shared with the
// admin handlers so both surfaces speak the same error vocabulary.
func claimError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, allocator.ErrAlreadyClaimed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already claimed for this event"})
	case errors.Is(err, allocator.ErrIneligibleTier):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "tier not eligible"})
	case errors.Is(err, allocator.ErrCapacityExceeded):
		return c.JSON(http.StatusConflict, echo.Map{"error": "event capacity exceeded"})
	case errors.Is(err, allocator.ErrNoTicketAvailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "sold out"})
	case errors.Is(err, allocator.ErrTicketClaimed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ticket already claimed"})
	case errors.Is(err, allocator.ErrClaimNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "claim not found"})
	case errors.Is(err, allocator.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, allocator.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, allocator.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, allocator.ErrNotOwner):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, allocator.ErrConsistency):
		return c.JSON(http.StatusConflict, echo.Map{"error": "inventory conflict, retry"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
}
