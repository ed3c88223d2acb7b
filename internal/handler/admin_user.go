package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gateleaf/ticket-engine/internal/model"
)

// TierStore is the slice of the user repository that tier
// administration needs. repository.UserRepo implements it.
type TierStore interface {
	SetTier(ctx context.Context, id uint64, tier model.Tier) error
}

// AdminUserHandler serves membership tier administration. Tier changes
// normally arrive from the billing system; this endpoint is the manual
// override for support cases.
type AdminUserHandler struct {
	Users TierStore
}

func NewAdminUserHandler(users TierStore) *AdminUserHandler {
	return &AdminUserHandler{Users: users}
}

type tierReq struct {
	Tier string `json:"tier"` // BASIC | PLUS | VIP
}

// UpdateTier moves a user to another membership tier. Existing claims
// are untouched; eligibility is checked at claim time only.
func (h *AdminUserHandler) UpdateTier(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req tierReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	tier, ok := model.ParseTier(req.Tier)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown tier"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.SetTier(ctx, id, tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update tier failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "tier": string(tier)})
}
