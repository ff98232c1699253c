package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/competeiq/api/internal/auth"
)

const testSecret = "middleware-secret"

func newApp(h fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get("/me", h, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userId": GetUserID(c), "name": GetUserName(c), "sid": GetSessionID(c)})
	})
	return app
}

func TestAuthenticate(t *testing.T) {
	app := newApp(NewLegacyAuthMiddleware(testSecret).Authenticate())
	token, _ := auth.IssueToken(testSecret, auth.Identity{UserID: "u-1", Name: "Ada", SessionID: "sid-1"}, time.Hour)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"malformed", "Token x", fiber.StatusUnauthorized},
		{"bad token", "Bearer nope", fiber.StatusUnauthorized},
		{"valid", "Bearer " + token, fiber.StatusOK},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != c.want {
				t.Errorf("expected %d, got %d", c.want, resp.StatusCode)
			}
		})
	}
}

func TestGatewayAuth(t *testing.T) {
	app := newApp(GatewayAuthMiddleware())

	req := httptest.NewRequest("GET", "/me", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("expected 401 without headers, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("X-User-Id", "gw-user")
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200 with headers, got %d", resp.StatusCode)
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil), -1)
	if err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected %v %v", resp, err)
	}
}
