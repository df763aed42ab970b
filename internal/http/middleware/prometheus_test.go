package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPromApp(t *testing.T, skip ...string) (*fiber.App, *PrometheusMiddleware) {
	t.Helper()
	// Fresh registry per test avoids duplicate registration.
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMiddleware(reg, skip...)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(m.Handler())
	return app, m
}

func TestPrometheusMiddleware(t *testing.T) {
	app, m := newPromApp(t)
	app.Get("/notices/previews", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/classes/:class/reconcile", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/error", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "render failed")
	})

	app.Test(httptest.NewRequest("GET", "/notices/previews", nil))
	app.Test(httptest.NewRequest("POST", "/classes/notices/reconcile", nil))
	app.Test(httptest.NewRequest("GET", "/error", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/notices/previews", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCount.WithLabelValues("POST", "/classes/:class/reconcile", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/error", "422")))
}

func TestPrometheusMiddleware_SkipsPaths(t *testing.T) {
	app, m := newPromApp(t, "/healthz")
	for _, p := range []string{"/metrics", "/healthz"} {
		app.Get(p, func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})
		app.Test(httptest.NewRequest("GET", p, nil))
	}

	assert.Equal(t, 0, testutil.CollectAndCount(m.requestCount))
	assert.Equal(t, 0, testutil.CollectAndCount(m.requestDuration))
}

func TestPrometheusMiddleware_PathPattern(t *testing.T) {
	app, m := newPromApp(t)
	app.Get("/documents/:filename/pages", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Test(httptest.NewRequest("GET", "/documents/report.pdf/pages", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/documents/:filename/pages", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
}
