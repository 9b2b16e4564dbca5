package cart

import (
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

func makeAppWithCartHandler(h *Handler) *fiber.App {
	app := fiber.New()
	h.RegisterRoutes(app)
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-User-ID"); v != "" {
			id, err := strconv.Atoi(v)
			if err == nil {
				claims := jwt.MapClaims{"user_id": id}
				tok := &jwt.Token{Claims: claims}
				c.Locals("user", tok)
			}
		}
		return c.Next()
	})
	h.RegisterProtectedRoutes(app)
	return app
}

func TestGuestCartRoutes(t *testing.T) {
	svc, _, _ := newTestService(nil)
	app := makeAppWithCartHandler(NewHandler(svc))

	// session key is mandatory for guest routes
	res, _ := app.Test(httptest.NewRequest("GET", "/api/v1/guest/cart", nil))
	if res.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without session key, got %d", res.StatusCode)
	}

	req := httptest.NewRequest("POST", "/api/v1/guest/cart/lines", strings.NewReader(`{"productID":1,"quantity":2}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSessionKey, "guest-abc")
	res, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 adding line, got %d", res.StatusCode)
	}

	req = httptest.NewRequest("GET", "/api/v1/guest/cart", nil)
	req.Header.Set(HeaderSessionKey, "guest-abc")
	res, _ = app.Test(req)
	var crt Cart
	if err := json.NewDecoder(res.Body).Decode(&crt); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(crt.Lines) != 1 || crt.Lines[0].Quantity != 2 {
		t.Errorf("unexpected cart contents: %+v", crt.Lines)
	}

	// an unknown session reads as an empty cart, not an error
	req = httptest.NewRequest("GET", "/api/v1/guest/cart", nil)
	req.Header.Set(HeaderSessionKey, "never-seen")
	res, _ = app.Test(req)
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for unknown session, got %d", res.StatusCode)
	}
}

func TestNewSessionRoute(t *testing.T) {
	svc, _, _ := newTestService(nil)
	app := makeAppWithCartHandler(NewHandler(svc))

	res, err := app.Test(httptest.NewRequest("POST", "/api/v1/guest/session", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if res.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	var body struct {
		SessionKey string `json:"sessionKey"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionKey == "" {
		t.Error("expected a session key")
	}
}

func TestCartRoutesStockConflict(t *testing.T) {
	svc, _, _ := newTestService(nil)
	app := makeAppWithCartHandler(NewHandler(svc))

	// product 1 has 10 units
	req := httptest.NewRequest("POST", "/api/v1/cart/lines", strings.NewReader(`{"productID":1,"quantity":11}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "42")
	res, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if res.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d", res.StatusCode)
	}
	var body struct {
		Available int `json:"available"`
		Requested int `json:"requested"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Available != 10 || body.Requested != 11 {
		t.Errorf("expected available=10 requested=11, got %+v", body)
	}
}

func TestCartRoutesLineOwnership(t *testing.T) {
	svc, _, _ := newTestService(nil)
	app := makeAppWithCartHandler(NewHandler(svc))

	req := httptest.NewRequest("POST", "/api/v1/cart/lines", strings.NewReader(`{"productID":1,"quantity":2}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "42")
	res, _ := app.Test(req)
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 adding line, got %d", res.StatusCode)
	}
	var line Line
	if err := json.NewDecoder(res.Body).Decode(&line); err != nil {
		t.Fatalf("decode line: %v", err)
	}

	// a different user cannot touch the line
	req = httptest.NewRequest("DELETE", "/api/v1/cart/lines/"+strconv.Itoa(line.ID), nil)
	req.Header.Set("X-User-ID", "99")
	res, _ = app.Test(req)
	if res.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 deleting another user's line, got %d", res.StatusCode)
	}

	req = httptest.NewRequest("DELETE", "/api/v1/cart/lines/"+strconv.Itoa(line.ID), nil)
	req.Header.Set("X-User-ID", "42")
	res, _ = app.Test(req)
	if res.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 deleting own line, got %d", res.StatusCode)
	}
}

func TestCartRoutesMerge(t *testing.T) {
	svc, _, _ := newTestService(nil)
	app := makeAppWithCartHandler(NewHandler(svc))

	req := httptest.NewRequest("POST", "/api/v1/guest/cart/lines", strings.NewReader(`{"productID":3,"quantity":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSessionKey, "guest-abc")
	if res, _ := app.Test(req); res.StatusCode != fiber.StatusOK {
		t.Fatalf("seed guest cart failed: %d", res.StatusCode)
	}

	req = httptest.NewRequest("POST", "/api/v1/cart/merge", strings.NewReader(`{"sessionKey":"guest-abc"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "42")
	res, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 merging, got %d", res.StatusCode)
	}
	var crt Cart
	if err := json.NewDecoder(res.Body).Decode(&crt); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(crt.Lines) != 1 {
		t.Errorf("expected 1 merged line, got %d", len(crt.Lines))
	}

	// guest cart is gone after the merge
	req = httptest.NewRequest("GET", "/api/v1/guest/cart", nil)
	req.Header.Set(HeaderSessionKey, "guest-abc")
	res, _ = app.Test(req)
	var guest Cart
	if err := json.NewDecoder(res.Body).Decode(&guest); err != nil {
		t.Fatalf("decode guest cart: %v", err)
	}
	if len(guest.Lines) != 0 {
		t.Errorf("expected empty guest cart after merge, got %d lines", len(guest.Lines))
	}
}
