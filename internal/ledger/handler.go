package ledger

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

const dateLayout = "2006-01-02"

// Handler exposes transaction history endpoints.
type Handler struct {
	service *Service
	wallets *wallet.Service
	loc     *time.Location
}

// NewHandler constructs a history handler. Dates in query strings are read in loc.
func NewHandler(service *Service, wallets *wallet.Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, wallets: wallets, loc: loc}
}

// History lists the caller's transactions, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	w, err := h.wallets.GetByOwner(c.UserContext(), uid)
	if err != nil {
		return err
	}

	filter := Filter{
		Type:     Type(c.Query("type")),
		Status:   Status(c.Query("status")),
		Category: Category(c.Query("category")),
	}
	if v := c.Query("start_date"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, h.loc)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("invalid start_date %q", v))
		}
		filter.From = d
	}
	if v := c.Query("end_date"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, h.loc)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("invalid end_date %q", v))
		}
		filter.To = d.AddDate(0, 0, 1)
	}

	page, err := h.service.List(c.UserContext(), w.ID, filter, PageRequest{
		Number: c.QueryInt("page", 1),
		Size:   c.QueryInt("page_size", DefaultPageSize),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(page)
}

// Get returns one of the caller's transactions by reference.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	w, err := h.wallets.GetByOwner(c.UserContext(), uid)
	if err != nil {
		return err
	}
	txn, err := h.service.Get(c.UserContext(), w.ID, c.Params("reference"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(txn)
}
