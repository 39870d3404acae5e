package web

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/mailgrove/mailgrove/pkg/persistence"
	"github.com/mailgrove/mailgrove/pkg/ratelimit"
)

// Identity headers. Authentication itself is an upstream concern; the API
// trusts these to scope rate limiting and usage accounting.
const (
	HeaderAPIKey   = "X-API-Key"
	HeaderTenantID = "X-Tenant-ID"
)

// RateLimitMiddleware gates every request through the composite limiter and
// appends one usage row per admitted request. The usage row is what future
// window counts are computed from, so it must land even when the handler
// fails.
func RateLimitMiddleware(limiter *ratelimit.Limiter, usage persistence.UsageRepository, logger *slog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		tenantID := c.Get(HeaderTenantID)
		apiKeyID := c.Get(HeaderAPIKey)

		result, err := limiter.Allow(c.Context(), ratelimit.Request{
			TenantID:  tenantID,
			APIKeyID:  apiKeyID,
			IPAddress: c.IP(),
			Endpoint:  c.Path(),
		})
		if err != nil {
			return internalError(c, err)
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			return tooManyRequests(c, "rate limit exceeded for scope "+result.Scope, result.RetryAfter)
		}

		err = c.Next()

		record := models.UsageRecord{
			TenantID:   tenantID,
			APIKeyID:   apiKeyID,
			IPAddress:  c.IP(),
			Endpoint:   c.Path(),
			StatusCode: c.Response().StatusCode(),
			Timestamp:  time.Now(),
		}

		if appendErr := usage.Append(c.Context(), record); appendErr != nil {
			logger.Warn("Failed to append usage record", "error", appendErr)
		}

		return err
	}
}
