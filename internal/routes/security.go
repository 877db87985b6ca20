package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/pin"
)

// RegisterSecurityRoutes wires transaction PIN endpoints.
func RegisterSecurityRoutes(r fiber.Router, h *pin.Handler) {
	group := r.Group("/security")
	group.Post("/pin", h.Set)
	group.Get("/pin", h.Status)
}
