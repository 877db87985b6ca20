package routes

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// RegisterIdentityRoutes wires onboarding. Registration provisions the
// user's wallet in the same unit of work and returns an access token.
func RegisterIdentityRoutes(r fiber.Router, s *Services, logger *slog.Logger) {
	r.Post("/identity/register", func(c *fiber.Ctx) error {
		var req struct {
			Phone    string `json:"phone_number"`
			FullName string `json:"full_name"`
			Currency string `json:"currency"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}

		var (
			user identity.User
			w    wallet.Wallet
		)
		err := s.Tx.WithinTx(c.UserContext(), func(ctx context.Context) error {
			var err error
			if user, err = s.Users.Register(ctx, identity.RegisterInput{Phone: req.Phone, FullName: req.FullName}); err != nil {
				return err
			}
			w, err = s.Wallets.Create(ctx, wallet.CreateInput{OwnerID: user.ID, Currency: req.Currency})
			return err
		})
		if err != nil {
			return err
		}

		token, err := s.Tokens.Issue(user.ID)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("identity.register completed",
				slog.String("user_id", user.ID),
				slog.String("account_number", user.AccountNumber),
				slog.String("wallet_id", w.ID),
			)
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user":         user,
			"wallet":       w,
			"access_token": token.AccessToken,
			"expires_in":   token.ExpiresIn,
		})
	})
}
