package transport

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newRequestIDApp(capture *string) *fiber.App {
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		*capture = RequestID(c)
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequestIDMiddlewareGenerates(t *testing.T) {
	t.Parallel()

	var seen string
	resp, err := newRequestIDApp(&seen).Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if seen == "" {
		t.Fatal("handler saw no request id")
	}
	if got := resp.Header.Get(HeaderRequestID); got != seen {
		t.Fatalf("response header = %q, want %q", got, seen)
	}
}

func TestRequestIDMiddlewareKeepsCallerID(t *testing.T) {
	t.Parallel()

	var seen string
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, "trace-123")

	resp, err := newRequestIDApp(&seen).Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if seen != "trace-123" {
		t.Fatalf("handler saw %q, want trace-123", seen)
	}
	if got := resp.Header.Get(HeaderRequestID); got != "trace-123" {
		t.Fatalf("response header = %q, want trace-123", got)
	}
}
