package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/analytics"
	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/beneficiary"
	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/funding"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/middleware"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/payments"
	"github.com/congo-pay/wallet_ledger/internal/pin"
	"github.com/congo-pay/wallet_ledger/internal/store"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB, Cache
// and Notifier may be nil in development.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Services holds the wired domain services.
type Services struct {
	Tx            store.Manager
	Users         *identity.Service
	Wallets       *wallet.Service
	Ledger        *ledger.Service
	Pins          *pin.Service
	Beneficiaries *beneficiary.Service
	Analytics     *analytics.Service
	Payments      *payments.Service
	Funding       *funding.Service
	Tokens        *auth.Service
	Sweeper       *ledger.Sweeper
}

// NewServices builds every service on Postgres when d.DB is set and on the
// in-memory store otherwise.
func NewServices(d Deps) (*Services, error) {
	if !d.Cfg.IsDevelopment() && d.DB == nil {
		return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	var (
		tx          store.Manager
		userRepo    identity.Repository
		walletRepo  wallet.Repository
		ledgerRepo  ledger.Repository
		pinRepo     pin.Repository
		contactRepo beneficiary.Repository
		rollupRepo  analytics.Repository
	)
	if d.DB != nil {
		tx = store.NewPostgres(d.DB, d.Cfg.LockTimeout)
		userRepo = identity.NewPostgresRepository(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		ledgerRepo = ledger.NewPostgresRepository(d.DB)
		pinRepo = pin.NewPostgresRepository(d.DB)
		contactRepo = beneficiary.NewPostgresRepository(d.DB)
		rollupRepo = analytics.NewPostgresRepository(d.DB)
	} else {
		tx = store.NewMemory(d.Cfg.LockTimeout)
		userRepo = identity.NewMemoryRepository()
		walletRepo = wallet.NewMemoryRepository()
		ledgerRepo = ledger.NewInMemory()
		pinRepo = pin.NewMemoryRepository()
		contactRepo = beneficiary.NewMemoryRepository()
		rollupRepo = analytics.NewMemoryRepository()
	}

	s := &Services{Tx: tx, Tokens: auth.NewService(d.Cfg.JWTSecret, d.Cfg.TokenTTL)}
	s.Users = identity.NewService(userRepo)
	s.Wallets = wallet.NewService(tx, walletRepo, d.Cfg.DefaultCurrency)
	s.Ledger = ledger.NewService(ledgerRepo)
	s.Pins = pin.NewService(tx, pinRepo, pin.Policy{MaxAttempts: d.Cfg.PinMaxAttempts, Lockout: d.Cfg.PinLockout})
	s.Beneficiaries = beneficiary.NewService(contactRepo, s.Users)
	s.Analytics = analytics.NewService(tx, s.Ledger, s.Wallets, rollupRepo, d.Cfg.Location)
	s.Payments = payments.NewService(payments.Deps{
		Tx:            tx,
		Wallets:       s.Wallets,
		Ledger:        s.Ledger,
		Pins:          s.Pins,
		Users:         s.Users,
		Beneficiaries: s.Beneficiaries,
		Analytics:     s.Analytics,
		Notifier:      d.Notifier,
		Logger:        d.Logger,
	}, payments.DefaultLimits())
	s.Funding = funding.NewService(funding.Deps{
		Tx:        tx,
		Wallets:   s.Wallets,
		Ledger:    s.Ledger,
		Pins:      s.Pins,
		Analytics: s.Analytics,
		Notifier:  d.Notifier,
		Logger:    d.Logger,
	}, funding.DefaultLimits())
	s.Sweeper = ledger.NewSweeper(s.Ledger, tx, d.Cfg.SweepInterval, d.Cfg.PendingMaxAge, d.Logger)
	return s, nil
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, s *Services) error {
	if !d.Cfg.IsDevelopment() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDevelopment() {
		// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	} else {
		app.Use(middleware.Audit(d.Logger))
	}

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDOf(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, s, d.Logger)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(s.Tokens))
	protected.Get("/me", identity.NewHandler(s.Users).Me)
	RegisterWalletRoutes(protected, wallet.NewHandler(s.Wallets))
	RegisterDashboardRoute(protected, s, d.Cfg.Location)
	RegisterSecurityRoutes(protected, pin.NewHandler(s.Pins))
	RegisterBeneficiaryRoutes(protected, beneficiary.NewHandler(s.Beneficiaries))
	protected.Get("/analytics", analytics.NewHandler(s.Analytics, s.Wallets).Get)

	// Money movement requires an Idempotency-Key and is rate limited per user.
	money := []fiber.Handler{
		middleware.RateLimit(d.Cache, "money", d.Cfg.MoneyRateLimit, time.Minute),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	}
	RegisterTransactionRoutes(protected, ledger.NewHandler(s.Ledger, s.Wallets, d.Cfg.Location), payments.NewHandler(s.Payments), money)
	RegisterFundingRoutes(protected, funding.NewHandler(s.Funding), money)

	return nil
}
