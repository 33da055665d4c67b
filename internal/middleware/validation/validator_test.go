package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{JSONObjectPaths: []string{"/api/v1/classify", "/api/v1/validate"}}))
	app.Post("/api/v1/classify", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/api/v1/validate/:type", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/api/v1/emails", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/api/v1/trades", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		want        int
	}{
		{name: "json object", method: "POST", path: "/api/v1/classify", contentType: "application/json", body: `{"tradeId": "T-1"}`, want: 200},
		{name: "json array", method: "POST", path: "/api/v1/classify", contentType: "application/json", body: `[1, 2]`, want: 400},
		{name: "empty body", method: "POST", path: "/api/v1/validate/irs", contentType: "application/json", want: 400},
		{name: "malformed", method: "POST", path: "/api/v1/validate/irs", contentType: "application/json", body: `{"tradeId": `, want: 400},
		{name: "charset suffix", method: "POST", path: "/api/v1/validate/irs", contentType: "application/json; charset=utf-8", body: `{}`, want: 200},
		{name: "unsupported type", method: "POST", path: "/api/v1/classify", contentType: "application/xml", body: `<a/>`, want: 415},
		{name: "raw email", method: "POST", path: "/api/v1/emails", contentType: "message/rfc822", body: "Subject: x\r\n\r\nbody", want: 200},
		{name: "get untouched", method: "GET", path: "/api/v1/trades", want: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
