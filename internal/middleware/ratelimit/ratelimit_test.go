package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLimitsPerClient(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 2})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	do := func(clientID string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Client-ID", clientID)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, do("desk-a"))
	assert.Equal(t, fiber.StatusOK, do("desk-a"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("desk-a"))
	assert.Equal(t, fiber.StatusOK, do("desk-b"))
}

func TestEvictIdleClients(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 60, IdleTimeout: time.Minute})
	defer rl.Stop()

	now := time.Now()
	rl.allow("old", now.Add(-2*time.Minute))
	rl.allow("new", now)
	rl.evict(now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "old")
	assert.Contains(t, rl.clients, "new")
}
