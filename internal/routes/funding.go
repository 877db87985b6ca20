package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/funding"
)

// RegisterFundingRoutes wires deposit and bill payment endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, guards []fiber.Handler) {
	r.Post("/transactions/add-money", append(guards, h.AddMoney)...)
	r.Post("/transactions/bill-payment", append(guards, h.PayBill)...)
}
