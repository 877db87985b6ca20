package analytics

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

const (
	defaultDays = 7
	maxDays     = 366
)

// Handler exposes the analytics endpoint.
type Handler struct {
	service *Service
	wallets *wallet.Service
}

// NewHandler constructs an analytics handler.
func NewHandler(service *Service, wallets *wallet.Service) *Handler {
	return &Handler{service: service, wallets: wallets}
}

// Get returns the caller's rollups for the last ?days days, today included.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	days := c.QueryInt("days", defaultDays)
	if days < 1 || days > maxDays {
		return fiber.NewError(http.StatusBadRequest, "days must be between 1 and 366")
	}
	w, err := h.wallets.GetByOwner(c.UserContext(), uid)
	if err != nil {
		return err
	}
	to := h.service.now()
	report, err := h.service.Report(c.UserContext(), uid, w.ID, to.AddDate(0, 0, -(days-1)), to)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(report)
}
