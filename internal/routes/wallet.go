package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/beneficiary"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet/balance", h.Balance)
}

// RegisterBeneficiaryRoutes wires saved counterparties.
func RegisterBeneficiaryRoutes(r fiber.Router, h *beneficiary.Handler) {
	group := r.Group("/beneficiaries")
	group.Get("/", h.List)
	group.Post("/", h.Upsert)
	group.Put("/:userId/favorite", h.SetFavorite)
}
