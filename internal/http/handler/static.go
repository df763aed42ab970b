package handler

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"

	"docview/docs"
)

// RegisterRenderCache serves published page images under RenderCachePrefix.
// Staging, retired and marker entries of the cache directory are never exposed.
func RegisterRenderCache(app *fiber.App, root string) {
	app.Static(RenderCachePrefix, root, fiber.Static{
		Browse: false,
		Next: func(c *fiber.Ctx) bool {
			return hiddenPath(c.Path())
		},
	})
}

// hiddenPath reports whether any segment of p, raw or unescaped, starts with a dot.
func hiddenPath(p string) bool {
	if unescaped, err := url.PathUnescape(p); err == nil && unescaped != p {
		if hiddenPath(unescaped) {
			return true
		}
	}
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// SwaggerUI serves the API docs with the caller's host and scheme. defaultHost is
// advertised when the request carries no Host header.
func SwaggerUI(defaultHost string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get(fiber.HeaderXForwardedProto); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		docs.SwaggerInfo.Host = swaggerHost(c.Get(fiber.HeaderHost), defaultHost)
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	}
}

func swaggerHost(header, defaultHost string) string {
	if header != "" {
		return header
	}
	return defaultHost
}
