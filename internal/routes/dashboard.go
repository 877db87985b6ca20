package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

const dashboardRecent = 5

// RegisterDashboardRoute exposes a single call summarising the caller's
// wallet, recent activity and today's totals.
func RegisterDashboardRoute(r fiber.Router, s *Services, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	r.Get("/dashboard", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		if uid == "" {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		ctx := c.UserContext()

		user, err := s.Users.Get(ctx, uid)
		if err != nil {
			return err
		}
		w, err := s.Wallets.GetByOwner(ctx, uid)
		if err != nil {
			return err
		}
		recent, err := s.Ledger.List(ctx, w.ID, ledger.Filter{}, ledger.PageRequest{Number: 1, Size: dashboardRecent})
		if err != nil {
			return err
		}
		now := time.Now().In(loc)
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		today, err := s.Ledger.Summarize(ctx, w.ID, start, start.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		pinStatus, err := s.Pins.Status(ctx, uid)
		if err != nil {
			return err
		}

		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user":                user,
			"wallet":              w,
			"recent_transactions": recent.Items,
			"today":               today,
			"pin":                 pinStatus,
		})
	})
}
