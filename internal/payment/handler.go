package payment

import (
	"errors"
	"time"

	"github.com/devopsinitiate/storefront-backend/internal/order"
	"github.com/devopsinitiate/storefront-backend/internal/user"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Signature headers, one per provider style.
const (
	CardSignatureHeader     = "X-Webhook-Signature"
	TransferSignatureHeader = "X-Transfer-Signature"
)

// Handler ingests provider webhooks and exposes intent creation to the
// checkout client. Signature failures answer with a client error so the
// provider keeps retrying and the mismatch stays visible in its dashboard.
type Handler struct {
	card     Gateway
	transfer Gateway
	orders   *order.Service
	currency string
	log      *zap.Logger
}

func NewHandler(card, transfer Gateway, orders *order.Service, currency string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{card: card, transfer: transfer, orders: orders, currency: currency, log: log}
}

func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/webhooks/card", h.webhook(h.card, CardSignatureHeader, cardProvider))
	app.Post("/api/v1/webhooks/transfer", h.webhook(h.transfer, TransferSignatureHeader, transferProvider))
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Post("/api/v1/payments/intent", h.createIntent)
}

type intentRequest struct {
	OrderID int    `json:"orderID"`
	Method  string `json:"method"` // "card" or "transfer"
}

func (h *Handler) createIntent(c *fiber.Ctx) error {
	userID, err := user.FromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	payload := new(intentRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	ord, err := h.orders.Get(c.Context(), payload.OrderID)
	if err != nil || ord.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "order not found"})
	}

	var gw Gateway
	switch payload.Method {
	case cardProvider:
		gw = h.card
	case transferProvider:
		gw = h.transfer
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "unknown payment method"})
	}

	intent, err := gw.CreateIntent(c.Context(), ord.Total, h.currency,
		map[string]string{"order_number": ord.Number})
	if err != nil {
		var procErr *ProcessorError
		if errors.As(err, &procErr) {
			// full detail stays server side; the client gets a generic answer
			h.log.Error("create intent failed",
				zap.String("provider", procErr.Provider),
				zap.String("order_number", ord.Number),
				zap.Error(procErr))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": "payment provider unavailable"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "payment setup failed"})
	}
	return c.JSON(intent)
}

func (h *Handler) webhook(gw Gateway, sigHeader, provider string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ev, err := gw.VerifyWebhook(c.Body(), c.Get(sigHeader))
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidSignature):
				h.log.Warn("webhook signature rejected",
					zap.String("provider", provider), zap.String("ip", c.IP()))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid signature"})
			case errors.Is(err, ErrInvalidPayload):
				h.log.Warn("webhook payload rejected", zap.String("provider", provider))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid payload"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "webhook processing failed"})
			}
		}

		switch ev.Type {
		case EventPaymentSucceeded:
			if _, err := h.orders.MarkPaid(c.Context(), ev.OrderNumber, time.Now().UTC()); err != nil {
				if errors.Is(err, order.ErrNotFound) {
					// test events and replays for purged orders are acknowledged
					h.log.Warn("webhook for unknown order",
						zap.String("provider", provider), zap.String("order_number", ev.OrderNumber))
					break
				}
				h.log.Error("webhook apply failed",
					zap.String("provider", provider),
					zap.String("order_number", ev.OrderNumber),
					zap.Error(err))
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "webhook processing failed"})
			}
		case EventPaymentFailed:
			h.orders.PaymentFailed(c.Context(), ev.OrderNumber, string(ev.Type))
		default:
			h.log.Debug("ignoring webhook event",
				zap.String("provider", provider), zap.String("type", string(ev.Type)))
		}
		return c.JSON(fiber.Map{"received": true})
	}
}
