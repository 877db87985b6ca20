package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/payments"
)

// RegisterTransactionRoutes wires transfers and transaction history. The
// history route is registered before the :reference lookup.
func RegisterTransactionRoutes(r fiber.Router, history *ledger.Handler, h *payments.Handler, guards []fiber.Handler) {
	r.Post("/transactions/send", append(guards, h.Send)...)
	r.Get("/transactions/history", history.History)
	r.Get("/transactions/:reference", history.Get)
}
