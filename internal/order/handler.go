package order

import (
	"errors"
	"strconv"

	"github.com/devopsinitiate/storefront-backend/internal/cart"
	"github.com/devopsinitiate/storefront-backend/internal/catalog"
	"github.com/devopsinitiate/storefront-backend/internal/stock"
	"github.com/devopsinitiate/storefront-backend/internal/user"
	"github.com/gofiber/fiber/v2"
)

// Handler exposes the order workflow. All routes require an authenticated
// user; the cart is resolved from the caller's identity, never from the
// request body.
type Handler struct {
	service *Service
	carts   *cart.Service
}

func NewHandler(s *Service, carts *cart.Service) *Handler {
	return &Handler{service: s, carts: carts}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Post("/api/v1/orders", h.create)
	app.Get("/api/v1/orders", h.listForUser)
	app.Get("/api/v1/orders/:id", h.getByID)
	app.Post("/api/v1/orders/:id/cancel", h.cancel)
	app.Put("/api/v1/orders/:id/status", h.updateStatus)
}

type createRequest struct {
	Shipping      Address `json:"shipping"`
	PaymentMethod string  `json:"paymentMethod"`
	PaymentRef    string  `json:"paymentRef,omitempty"`
}

func (h *Handler) create(c *fiber.Ctx) error {
	userID, err := user.FromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	payload := new(createRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}

	crt, err := h.carts.Get(c.Context(), cart.ForUser(userID))
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"message": ErrEmptyCart.Error()})
		}
		return orderError(c, err)
	}

	ord, err := h.service.Create(c.Context(), CreateInput{
		UserID:        userID,
		CartID:        crt.ID,
		Shipping:      payload.Shipping,
		PaymentMethod: payload.PaymentMethod,
		PaymentRef:    payload.PaymentRef,
	})
	if err != nil {
		return orderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ord)
}

func (h *Handler) listForUser(c *fiber.Ctx) error {
	userID, err := user.FromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	orders, err := h.service.GetForUser(c.Context(), userID)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(orders)
}

func (h *Handler) getByID(c *fiber.Ctx) error {
	userID, err := user.FromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	ord, err := h.ownedOrder(c, userID)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(ord)
}

func (h *Handler) cancel(c *fiber.Ctx) error {
	userID, err := user.FromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	ord, err := h.ownedOrder(c, userID)
	if err != nil {
		return orderError(c, err)
	}
	cancelled, err := h.service.Cancel(c.Context(), ord.ID)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(cancelled)
}

type statusRequest struct {
	Status         Status `json:"status"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

func (h *Handler) updateStatus(c *fiber.Ctx) error {
	userID, err := user.FromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	payload := new(statusRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	ord, err := h.ownedOrder(c, userID)
	if err != nil {
		return orderError(c, err)
	}
	updated, err := h.service.UpdateStatus(c.Context(), ord.ID, payload.Status, payload.TrackingNumber)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(updated)
}

func (h *Handler) ownedOrder(c *fiber.Ctx, userID int) (Order, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return Order{}, ErrNotFound
	}
	ord, err := h.service.Get(c.Context(), id)
	if err != nil {
		return Order{}, err
	}
	if ord.UserID != userID {
		return Order{}, ErrNotFound
	}
	return ord, nil
}

func orderError(c *fiber.Ctx, err error) error {
	var insErr *stock.InsufficientStockError
	switch {
	case errors.As(err, &insErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message":   "insufficient stock",
			"available": insErr.Available,
			"requested": insErr.Requested,
		})
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrInvalidShipping):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrAlreadyShippedOrDelivered),
		errors.Is(err, ErrCancellationWindowExpired):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, cart.ErrUnavailable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "product is unavailable"})
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound), errors.Is(err, cart.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}
