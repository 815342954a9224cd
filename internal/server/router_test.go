package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := NewApp(AppOptions{Logger: logger, ListenPort: 5000})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	app.Get("/ok", func(c fiber.Ctx) error {
		return c.SendString(RequestID(c))
	})
	app.Get("/panic", func(c fiber.Ctx) error {
		panic("boom")
	})
	app.Get("/teapot", func(c fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short_and_stout")
	})
	Finalize(app)
	return app
}

func TestRouterSetsRequestID(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	reqID := resp.Header.Get("X-Request-ID")
	if reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != reqID {
		t.Fatalf("handler should see the same request id, got %s vs %s", body, reqID)
	}
}

func TestRouterKeepsClientRequestID(t *testing.T) {
	app := newTestApp(t)
	const supplied = "5748decc-f629-461c-9a36-a35a221fe21f"

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("X-Request-ID", supplied)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != supplied {
		t.Fatalf("expected supplied request id, got %s", got)
	}
}

func TestRouterRendersJSONErrors(t *testing.T) {
	app := newTestApp(t)

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/missing", fiber.StatusNotFound, `"route_not_found"`},
		{"/teapot", fiber.StatusTeapot, `"short_and_stout"`},
		{"/panic", fiber.StatusInternalServerError, `"internal_error"`},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
		if err != nil {
			t.Fatalf("app.Test %s failed: %v", tc.path, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !bytes.Contains(body, []byte(tc.code)) {
			t.Fatalf("%s: expected %s in body, got %s", tc.path, tc.code, body)
		}
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	if _, err := NewApp(AppOptions{ListenPort: 5000}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New()}); err == nil {
		t.Fatalf("missing port should fail")
	}
}
