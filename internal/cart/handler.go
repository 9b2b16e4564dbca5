package cart

import (
	"errors"
	"strconv"

	"github.com/devopsinitiate/storefront-backend/internal/catalog"
	"github.com/devopsinitiate/storefront-backend/internal/stock"
	"github.com/devopsinitiate/storefront-backend/internal/user"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler exposes cart operations to both guests (session key header) and
// authenticated users (JWT). Guest routes are registered before the JWT
// middleware, user routes after it.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// HeaderSessionKey carries the anonymous cart identity for guests.
const HeaderSessionKey = "X-Session-Key"

func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/guest/session", h.newSession)
	app.Get("/api/v1/guest/cart", h.guest(h.getCart))
	app.Get("/api/v1/guest/cart/total", h.guest(h.getTotal))
	app.Post("/api/v1/guest/cart/lines", h.guest(h.addLine))
	app.Put("/api/v1/guest/cart/lines/:id", h.guest(h.updateLine))
	app.Delete("/api/v1/guest/cart/lines/:id", h.guest(h.removeLine))
	app.Delete("/api/v1/guest/cart", h.guest(h.clearCart))
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/cart", h.authed(h.getCart))
	app.Get("/api/v1/cart/total", h.authed(h.getTotal))
	app.Post("/api/v1/cart/lines", h.authed(h.addLine))
	app.Put("/api/v1/cart/lines/:id", h.authed(h.updateLine))
	app.Delete("/api/v1/cart/lines/:id", h.authed(h.removeLine))
	app.Delete("/api/v1/cart", h.authed(h.clearCart))
	app.Post("/api/v1/cart/merge", h.merge)
}

// newSession hands out the key a guest sends back on every cart request.
func (h *Handler) newSession(c *fiber.Ctx) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"sessionKey": uuid.NewString()})
}

type identityHandler func(c *fiber.Ctx, id Identity) error

func (h *Handler) guest(next identityHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(HeaderSessionKey)
		if key == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "missing session key"})
		}
		return next(c, ForSession(key))
	}
}

func (h *Handler) authed(next identityHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := user.FromCtx(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		}
		return next(c, ForUser(userID))
	}
}

type addLineRequest struct {
	ProductID int `json:"productID"`
	VariantID int `json:"variantID,omitempty"`
	Quantity  int `json:"quantity"`
}

func (h *Handler) addLine(c *fiber.Ctx, id Identity) error {
	payload := new(addLineRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if payload.ProductID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid productID"})
	}

	line, err := h.service.AddLine(c.Context(), id, payload.ProductID, payload.VariantID, payload.Quantity)
	if err != nil {
		return cartError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(line)
}

type updateLineRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateLine(c *fiber.Ctx, id Identity) error {
	lineID, err := strconv.Atoi(c.Params("id"))
	if err != nil || lineID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid line id"})
	}
	payload := new(updateLineRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if err := h.authorizeLine(c, id, lineID); err != nil {
		return cartError(c, err)
	}

	line, err := h.service.UpdateQuantity(c.Context(), lineID, payload.Quantity)
	if err != nil {
		return cartError(c, err)
	}
	return c.JSON(line)
}

func (h *Handler) removeLine(c *fiber.Ctx, id Identity) error {
	lineID, err := strconv.Atoi(c.Params("id"))
	if err != nil || lineID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid line id"})
	}
	if err := h.authorizeLine(c, id, lineID); err != nil {
		return cartError(c, err)
	}
	if err := h.service.RemoveLine(c.Context(), lineID); err != nil {
		return cartError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) getCart(c *fiber.Ctx, id Identity) error {
	crt, err := h.service.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// a cart that was never created is just empty
			return c.JSON(Cart{Lines: []Line{}})
		}
		return cartError(c, err)
	}
	return c.JSON(crt)
}

func (h *Handler) getTotal(c *fiber.Ctx, id Identity) error {
	crt, err := h.service.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(fiber.Map{"total": "0"})
		}
		return cartError(c, err)
	}
	total, err := h.service.Total(c.Context(), crt.ID)
	if err != nil {
		return cartError(c, err)
	}
	return c.JSON(fiber.Map{"total": total.String()})
}

func (h *Handler) clearCart(c *fiber.Ctx, id Identity) error {
	crt, err := h.service.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return cartError(c, err)
	}
	if err := h.service.Clear(c.Context(), crt.ID); err != nil {
		return cartError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type mergeRequest struct {
	SessionKey string `json:"sessionKey"`
}

func (h *Handler) merge(c *fiber.Ctx) error {
	userID, err := user.FromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	payload := new(mergeRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if payload.SessionKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "missing sessionKey"})
	}

	merged, err := h.service.MergeOnLogin(c.Context(), payload.SessionKey, userID)
	if err != nil {
		return cartError(c, err)
	}
	return c.JSON(merged)
}

// authorizeLine rejects line operations against somebody else's cart.
func (h *Handler) authorizeLine(c *fiber.Ctx, id Identity, lineID int) error {
	crt, err := h.service.Get(c.Context(), id)
	if err != nil {
		return err
	}
	for _, l := range crt.Lines {
		if l.ID == lineID {
			return nil
		}
	}
	return ErrLineNotFound
}

func cartError(c *fiber.Ctx, err error) error {
	var insErr *stock.InsufficientStockError
	switch {
	case errors.As(err, &insErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message":   "insufficient stock",
			"available": insErr.Available,
			"requested": insErr.Requested,
		})
	case errors.Is(err, ErrUnavailable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "product is unavailable"})
	case errors.Is(err, ErrQuantityOutOfRange):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, catalog.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "product not found"})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}
