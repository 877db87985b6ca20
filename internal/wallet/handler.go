package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	WalletID  string          `json:"wallet_id"`
	Balance   string          `json:"balance"`
	Currency  string          `json:"currency"`
	IsActive  bool            `json:"is_active"`
	IsFrozen  bool            `json:"is_frozen"`
	Timestamp time.Time       `json:"timestamp"`
}

// Balance returns the authenticated user's wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	w, err := h.service.GetByOwner(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{
		WalletID:  w.ID,
		Balance:   w.Balance.StringFixed(2),
		Currency:  w.Currency,
		IsActive:  w.IsActive,
		IsFrozen:  w.IsFrozen,
		Timestamp: time.Now().UTC(),
	})
}
