package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	RecipientPhone   string          `json:"recipient_phone"`
	RecipientAccount string          `json:"recipient_account"`
	Amount           decimal.Decimal `json:"amount"`
	Narration        string          `json:"narration"`
	PIN              string          `json:"transaction_pin"`
}

type transferResponse struct {
	Transaction   ledger.Transaction `json:"transaction"`
	NewBalance    string             `json:"new_balance"`
	RecipientName string             `json:"recipient_name"`
}

// Send processes a user-to-user transfer.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		SenderUserID: uid,
		Recipient:    identity.Lookup{Phone: req.RecipientPhone, AccountNumber: req.RecipientAccount},
		Amount:       req.Amount,
		Narration:    req.Narration,
		PIN:          req.PIN,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(transferResponse{
		Transaction:   res.Debit,
		NewBalance:    res.SenderBalance.StringFixed(2),
		RecipientName: res.Recipient.FullName,
	})
}
