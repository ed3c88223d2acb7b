package handler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gateleaf/ticket-engine/internal/document"
	"github.com/gateleaf/ticket-engine/internal/model"
	"github.com/gateleaf/ticket-engine/internal/repository"
)

// maxUploadBytes caps ingest uploads at 64 MiB of PDF.
const maxUploadBytes = 64 << 20

// AdminIngestHandler serves the two-phase document ingest: upload a
// source document, review previews, commit selected pages into
// inventory.
type AdminIngestHandler struct {
	Pipeline *document.Pipeline
	Types    *repository.TicketTypeRepo
}

func NewAdminIngestHandler(p *document.Pipeline, types *repository.TicketTypeRepo) *AdminIngestHandler {
	return &AdminIngestHandler{Pipeline: p, Types: types}
}

// Ingest accepts a multipart PDF upload for a ticket type, stages it
// and returns the session with per-page previews.
func (h *AdminIngestHandler) Ingest(c echo.Context) error {
	typeID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket type id"})
	}
	fh, err := c.FormFile("document")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "document file required"})
	}
	if fh.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "document too large"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable upload"})
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable upload"})
	}
	if len(data) > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "document too large"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 60*time.Second)
	defer cancel()

	tt, err := h.Types.GetByID(ctx, typeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket type not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	session, previews, err := h.Pipeline.Ingest(ctx, tt.EventID, tt.ID, data)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrInvalidDocument), errors.Is(err, document.ErrEmptyDocument):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "ingest failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"session":  sessionPart(session),
		"previews": previews,
	})
}

type commitReq struct {
	Pages []int `json:"pages"` // 1-based, at least one required
}

// Commit turns selected pages of a staged session into claimable
// artifacts and reports the per-page outcomes.
func (h *AdminIngestHandler) Commit(c echo.Context) error {
	sessionID := c.Param("session")
	var req commitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 120*time.Second)
	defer cancel()

	results, err := h.Pipeline.CommitPages(ctx, sessionID, req.Pages)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrSessionNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		case errors.Is(err, document.ErrPageOutOfRange), errors.Is(err, document.ErrNoPagesSelected):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, document.ErrPageAlreadyDone):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}
	failed := 0
	for _, r := range results {
		if r.Outcome == model.OutcomeFailed {
			failed++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"results": results, "failed": failed})
}

// Discard drops a staged session and its blob.
func (h *AdminIngestHandler) Discard(c echo.Context) error {
	sessionID := c.Param("session")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Pipeline.Discard(ctx, sessionID); err != nil {
		if errors.Is(err, document.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "discard failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

func sessionPart(s model.IngestSession) echo.Map {
	return echo.Map{
		"id":             s.ID,
		"event_id":       s.EventID,
		"ticket_type_id": s.TicketTypeID,
		"page_count":     s.PageCount,
	}
}
