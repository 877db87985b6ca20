package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Handler exposes HTTP endpoints for deposits and bill payments.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type depositRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Description   string          `json:"description"`
}

type billRequest struct {
	BillType        string          `json:"bill_type"`
	Amount          decimal.Decimal `json:"amount"`
	PhoneNumber     string          `json:"phone_number"`
	MeterNumber     string          `json:"meter_number"`
	SmartcardNumber string          `json:"smartcard_number"`
	PIN             string          `json:"transaction_pin"`
}

type response struct {
	Transaction       ledger.Transaction `json:"transaction"`
	NewBalance        string             `json:"new_balance"`
	AcquirerReference string             `json:"acquirer_reference,omitempty"`
}

// AddMoney credits the caller's wallet.
func (h *Handler) AddMoney(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	result, err := h.service.Deposit(c.UserContext(), DepositInput{
		UserID:      uid,
		Amount:      req.Amount,
		Method:      Method(req.PaymentMethod),
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(result))
}

// PayBill debits the caller's wallet for a bill.
func (h *Handler) PayBill(c *fiber.Ctx) error {
	var req billRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	result, err := h.service.PayBill(c.UserContext(), BillInput{
		UserID:          uid,
		BillType:        ledger.BillType(req.BillType),
		Amount:          req.Amount,
		PhoneNumber:     req.PhoneNumber,
		MeterNumber:     req.MeterNumber,
		SmartcardNumber: req.SmartcardNumber,
		PIN:             req.PIN,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(result))
}

func toResponse(result Result) response {
	return response{
		Transaction:       result.Transaction,
		NewBalance:        result.NewBalance.StringFixed(2),
		AcquirerReference: result.AcquirerReference,
	}
}
