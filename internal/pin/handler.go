package pin

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes PIN management endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a PIN handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type setRequest struct {
	PIN        string `json:"pin"`
	ConfirmPIN string `json:"confirm_pin"`
}

// Set creates or replaces the caller's transaction PIN.
func (h *Handler) Set(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	var req setRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetPin(c.UserContext(), uid, req.PIN, req.ConfirmPIN); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "transaction PIN set"})
}

// Status reports whether the caller has a PIN and its lock state.
func (h *Handler) Status(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	st, err := h.service.Status(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(st)
}
