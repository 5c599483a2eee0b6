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

	"github.com/bizbank/bizbank/internal/accounts"
	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/cards"
	"github.com/bizbank/bizbank/internal/config"
	"github.com/bizbank/bizbank/internal/funding"
	"github.com/bizbank/bizbank/internal/ledger"
	"github.com/bizbank/bizbank/internal/metrics"
	"github.com/bizbank/bizbank/internal/middleware"
	"github.com/bizbank/bizbank/internal/notification"
	"github.com/bizbank/bizbank/internal/payments"
	"github.com/bizbank/bizbank/internal/rates"
	"github.com/bizbank/bizbank/internal/users"
	"github.com/bizbank/bizbank/internal/verification"
	"github.com/bizbank/bizbank/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development. Notifier defaults to the log notifier.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Metrics  *metrics.Prometheus
	Notifier notification.Notifier
}

type stores struct {
	ledger        ledger.Ledger
	verifications verification.Store
	accounts      accounts.Repository
	payments      payments.Repository
	cards         cards.Repository
	users         users.Repository
}

func newStores(db *pgxpool.Pool) stores {
	if db == nil {
		return stores{
			ledger:        ledger.NewInMemory(),
			verifications: verification.NewMemoryStore(),
			accounts:      accounts.NewMemoryRepository(),
			payments:      payments.NewMemoryRepository(),
			cards:         cards.NewMemoryRepository(),
			users:         users.NewMemoryRepository(),
		}
	}
	return stores{
		ledger:        ledger.NewPostgresLedger(db),
		verifications: verification.NewPostgresStore(db),
		accounts:      accounts.NewPostgresRepository(db),
		payments:      payments.NewPostgresRepository(db),
		cards:         cards.NewPostgresRepository(db),
		users:         users.NewPostgresRepository(db),
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	var rec metrics.Recorder = metrics.NoOp{}
	if d.Metrics != nil {
		rec = d.Metrics
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewBreakerNotifier(notification.NewLoggerNotifier(d.Logger), notification.BreakerConfig{
			Name:        "notifier",
			Timeout:     30 * time.Second,
			SendTimeout: 5 * time.Second,
		}, rec, d.Logger)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDevelopment() {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	if d.Metrics != nil {
		app.Get("/metrics", d.Metrics.Handler())
	}

	// Services and handlers
	st := newStores(d.DB)
	verificationSvc := verification.NewService(st.verifications, notifier, rec, d.Logger)
	walletSvc := wallet.NewService(st.ledger, rec, d.Logger)
	fundingSvc, err := funding.NewService(st.ledger, rec, d.Logger)
	if err != nil {
		return err
	}
	accountSvc := accounts.NewService(st.accounts)
	paymentSvc := payments.NewService(st.payments, accountSvc, rates.Static(), walletSvc, verificationSvc, notifier, d.Logger)
	cardSvc := cards.NewService(st.cards, verificationSvc, d.Logger)
	userSvc := users.NewService(st.users, verificationSvc, st.ledger, notifier, d.Logger, d.Cfg.DefaultRoleID)

	walletHandler := wallet.NewHandler(walletSvc)
	paymentHandler := payments.NewHandler(paymentSvc)
	userHandler := users.NewHandler(userSvc)

	decisionLimit := middleware.DecisionRateLimit(d.Cache, d.Cfg.DecisionAttempts, d.Cfg.DecisionWindow, d.Logger)
	idempotent := func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Trusted service routes
	RegisterInternalRoutes(api, middleware.InternalKey(d.Cfg.InternalAPIKey), walletHandler, paymentHandler, userHandler)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(auth.NewVerifier(d.Cfg.JWTSecret, d.Cfg.JWTIssuer)))
	RegisterWalletRoutes(protected, walletHandler, funding.NewHandler(fundingSvc), idempotent)
	RegisterAccountRoutes(protected, accounts.NewHandler(accountSvc))
	RegisterPaymentRoutes(protected, paymentHandler, decisionLimit, idempotent)
	RegisterCardRoutes(protected, cards.NewHandler(cardSvc), decisionLimit)
	RegisterUserRoutes(protected, userHandler, decisionLimit)

	return nil
}
