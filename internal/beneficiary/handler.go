package beneficiary

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/identity"
)

// Handler exposes beneficiary endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a beneficiary handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type upsertRequest struct {
	Phone         string `json:"phone_number"`
	AccountNumber string `json:"account_number"`
	Nickname      string `json:"nickname"`
}

type favoriteRequest struct {
	IsFavorite bool `json:"is_favorite"`
}

// List returns the caller's beneficiaries. ?favorites=true keeps only favourites.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	contacts, err := h.service.List(c.UserContext(), uid, c.QueryBool("favorites", false))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(contacts)
}

// Upsert saves a beneficiary for the caller.
func (h *Handler) Upsert(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	var req upsertRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	contact, err := h.service.Upsert(c.UserContext(), uid, identity.Lookup{Phone: req.Phone, AccountNumber: req.AccountNumber}, req.Nickname)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(contact)
}

// SetFavorite flags or unflags a saved beneficiary.
func (h *Handler) SetFavorite(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	var req favoriteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	contact, err := h.service.SetFavorite(c.UserContext(), uid, c.Params("userId"), req.IsFavorite)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(contact)
}
