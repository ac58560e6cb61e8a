package handlers

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/codebuildervaibhav/video-transcriber/internal/logging"
)

// maxLimiters bounds the per-client map; it is reset when full
const maxLimiters = 10000

// RateLimit allows rps requests per second per client IP with the given
// burst. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) fiber.Handler {
	if rps <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	return func(c *fiber.Ctx) error {
		ip := c.IP()

		mu.Lock()
		l, ok := limiters[ip]
		if !ok {
			if len(limiters) >= maxLimiters {
				limiters = make(map[string]*rate.Limiter)
			}
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[ip] = l
		}
		mu.Unlock()

		if !l.Allow() {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests",
				"code":  "ERR_RATE_LIMITED",
			})
		}
		return c.Next()
	}
}

// Logs serves the in-memory log tail
func Logs(buf *logging.LogBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": buf.GetLogs(),
		})
	}
}
