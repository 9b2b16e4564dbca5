package main

import (
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	jwtware "github.com/gofiber/jwt/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devopsinitiate/storefront-backend/internal/cart"
	"github.com/devopsinitiate/storefront-backend/internal/catalog"
	"github.com/devopsinitiate/storefront-backend/internal/config"
	"github.com/devopsinitiate/storefront-backend/internal/notify"
	"github.com/devopsinitiate/storefront-backend/internal/order"
	"github.com/devopsinitiate/storefront-backend/internal/payment"
	"github.com/devopsinitiate/storefront-backend/internal/shipping"
	"github.com/devopsinitiate/storefront-backend/internal/stock"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal("ping database", zap.Error(err))
	}
	if err := bootstrapSchema(db); err != nil {
		logger.Fatal("bootstrap schema", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	ledger := stock.NewPostgresLedger(db)
	store := catalog.NewPostgresStore(db)
	cartRepo := cart.NewPostgresRepository(db)
	orderRepo := order.NewPostgresRepository(db)
	totals := cart.NewRedisTotalCache(rdb)
	rates := shipping.DefaultTable()
	notifier := notify.NewLogNotifier(logger)

	cartService := cart.NewService(cartRepo, store, ledger, totals, logger)
	orderService := order.NewService(orderRepo, cartRepo, store, ledger, rates, totals, notifier,
		order.Config{NumberPrefix: cfg.OrderPrefix, TaxRate: cfg.TaxRate}, logger)

	cardGateway := payment.NewCardGateway(cfg.CardBaseURL, cfg.CardSecretKey, cfg.CardWebhookSecret)
	transferGateway := payment.NewTransferGateway(cfg.TransferBaseURL, cfg.TransferAPIKey, cfg.TransferWebhookSecret)

	catalogHandler := catalog.NewHandler(store)
	cartHandler := cart.NewHandler(cartService)
	orderHandler := order.NewHandler(orderService, cartService)
	paymentHandler := payment.NewHandler(cardGateway, transferGateway, orderService, cfg.Currency, logger)

	app := fiber.New()
	app.Use(cors.New())

	// public: catalog, guest carts, provider webhooks
	catalogHandler.RegisterRoutes(app)
	cartHandler.RegisterRoutes(app)
	paymentHandler.RegisterRoutes(app)

	// everything below requires a JWT
	app.Use(jwtware.New(jwtware.Config{SigningKey: []byte(cfg.JWTSecret)}))
	cartHandler.RegisterProtectedRoutes(app)
	orderHandler.RegisterProtectedRoutes(app)
	paymentHandler.RegisterProtectedRoutes(app)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down")
		_ = app.Shutdown()
	}()

	logger.Info("starting server", zap.String("addr", cfg.Addr))
	if err := app.Listen(cfg.Addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// bootstrapSchema creates the tables the checkout core owns. Catalog tables
// are managed by the admin side; only the unique index on order numbers is
// essential here, it is what makes number allocation safe to retry.
func bootstrapSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stock_units (
			product_id INT NOT NULL,
			variant_id INT NOT NULL DEFAULT 0,
			quantity INT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			PRIMARY KEY (product_id, variant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS carts (
			cart_id SERIAL PRIMARY KEY,
			user_id INT UNIQUE,
			session_key TEXT UNIQUE,
			CHECK (user_id IS NOT NULL OR session_key IS NOT NULL)
		)`,
		`CREATE TABLE IF NOT EXISTS cart_lines (
			line_id SERIAL PRIMARY KEY,
			cart_id INT NOT NULL REFERENCES carts(cart_id) ON DELETE CASCADE,
			product_id INT NOT NULL,
			variant_id INT NOT NULL DEFAULT 0,
			quantity INT NOT NULL CHECK (quantity >= 1),
			UNIQUE (cart_id, product_id, variant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id SERIAL PRIMARY KEY,
			order_number TEXT NOT NULL UNIQUE,
			user_id INT NOT NULL,
			status TEXT NOT NULL,
			full_name TEXT NOT NULL,
			phone TEXT NOT NULL,
			address_line1 TEXT NOT NULL,
			address_line2 TEXT,
			city TEXT NOT NULL,
			postal_code TEXT NOT NULL,
			country TEXT NOT NULL,
			subtotal NUMERIC(12,2) NOT NULL,
			shipping_cost NUMERIC(12,2) NOT NULL,
			tax NUMERIC(12,2) NOT NULL,
			total NUMERIC(12,2) NOT NULL,
			payment_method TEXT NOT NULL,
			payment_ref TEXT,
			tracking_number TEXT,
			paid_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			line_id SERIAL PRIMARY KEY,
			order_id INT NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
			product_id INT NOT NULL,
			variant_id INT NOT NULL DEFAULT 0,
			product_name TEXT NOT NULL,
			variant_name TEXT,
			unit_price NUMERIC(12,2) NOT NULL,
			quantity INT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
