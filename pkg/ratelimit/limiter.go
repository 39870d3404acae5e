// Package ratelimit implements the fixed-window counting limiter used as an
// admission gate in front of API requests and send-type side effects.
//
// Counts come from the append-only usage log; there is no in-process state.
// A fixed window permits up to twice the limit across a window boundary —
// that boundary behavior is part of the contract and must not be tightened
// here without revisiting the stored-count semantics.
package ratelimit

import (
	"context"
	"time"

	"github.com/mailgrove/mailgrove/pkg/persistence"
)

// Default window sizes.
const (
	DefaultAPIKeyWindow = time.Minute
	DefaultBurstWindow  = 10 * time.Second
)

// Config carries the ceilings for the three independent checks. A zero
// limit disables its check.
type Config struct {
	APIKeyWindow time.Duration
	APIKeyLimit  int

	TenantPerMinute int
	TenantPerHour   int
	TenantPerDay    int

	BurstWindow time.Duration
	BurstLimit  int
}

// Request identifies the caller for a composite admission decision.
type Request struct {
	TenantID  string
	APIKeyID  string
	IPAddress string
	Endpoint  string
}

// Result is one admission decision. Remaining counts requests still
// admissible in the current window; RetryAfter is how long until the
// denying window rolls over.
type Result struct {
	Allowed    bool          `json:"allowed"`
	Scope      string        `json:"scope"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
}

// Limiter composes the API-key, tenant, and burst checks over the usage log.
type Limiter struct {
	usage persistence.UsageRepository
	cfg   Config
	now   func() time.Time
}

func NewLimiter(usage persistence.UsageRepository, cfg Config) *Limiter {
	if cfg.APIKeyWindow == 0 {
		cfg.APIKeyWindow = DefaultAPIKeyWindow
	}

	if cfg.BurstWindow == 0 {
		cfg.BurstWindow = DefaultBurstWindow
	}

	return &Limiter{
		usage: usage,
		cfg:   cfg,
		now:   time.Now,
	}
}

// checkWindow runs one fixed-window count. The window is aligned to the
// clock, not to the first request.
func (l *Limiter) checkWindow(ctx context.Context, scope persistence.UsageScope, label string, limit int, window time.Duration) (*Result, error) {
	now := l.now()
	windowStart := now.Truncate(window)

	count, err := l.usage.CountInWindow(ctx, scope, windowStart)
	if err != nil {
		return nil, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   count < limit,
		Scope:     label,
		Limit:     limit,
		Remaining: remaining,
	}

	if !result.Allowed {
		result.RetryAfter = windowStart.Add(window).Sub(now)
	}

	return result, nil
}

// CheckAPIKey bounds requests per API key and caller IP, optionally scoped
// to a single endpoint.
func (l *Limiter) CheckAPIKey(ctx context.Context, apiKeyID, ip, endpoint string) (*Result, error) {
	scope := persistence.UsageScope{APIKeyID: apiKeyID, IPAddress: ip, Endpoint: endpoint}

	return l.checkWindow(ctx, scope, "api_key", l.cfg.APIKeyLimit, l.cfg.APIKeyWindow)
}

// CheckTenant bounds whole-tenant traffic over three nested windows. The
// returned result is the most restrictive of the active tiers.
func (l *Limiter) CheckTenant(ctx context.Context, tenantID string) (*Result, error) {
	scope := persistence.UsageScope{TenantID: tenantID}

	tiers := []struct {
		label  string
		limit  int
		window time.Duration
	}{
		{"tenant:minute", l.cfg.TenantPerMinute, time.Minute},
		{"tenant:hour", l.cfg.TenantPerHour, time.Hour},
		{"tenant:day", l.cfg.TenantPerDay, 24 * time.Hour},
	}

	var tightest *Result

	for _, tier := range tiers {
		if tier.limit <= 0 {
			continue
		}

		result, err := l.checkWindow(ctx, scope, tier.label, tier.limit, tier.window)
		if err != nil {
			return nil, err
		}

		tightest = mostRestrictive(tightest, result)
	}

	if tightest == nil {
		return &Result{Allowed: true, Scope: "tenant", Limit: 0, Remaining: 0}, nil
	}

	return tightest, nil
}

// CheckBurst bounds short per-tenant-per-IP request bursts.
func (l *Limiter) CheckBurst(ctx context.Context, tenantID, ip string) (*Result, error) {
	scope := persistence.UsageScope{TenantID: tenantID, IPAddress: ip}

	return l.checkWindow(ctx, scope, "burst", l.cfg.BurstLimit, l.cfg.BurstWindow)
}

// Allow composes the three checks: all active checks must admit the
// request, and the reported result is the most restrictive one.
func (l *Limiter) Allow(ctx context.Context, req Request) (*Result, error) {
	var results []*Result

	if l.cfg.APIKeyLimit > 0 && req.APIKeyID != "" {
		result, err := l.CheckAPIKey(ctx, req.APIKeyID, req.IPAddress, req.Endpoint)
		if err != nil {
			return nil, err
		}

		results = append(results, result)
	}

	if req.TenantID != "" {
		result, err := l.CheckTenant(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}

		if result.Limit > 0 {
			results = append(results, result)
		}
	}

	if l.cfg.BurstLimit > 0 && req.TenantID != "" {
		result, err := l.CheckBurst(ctx, req.TenantID, req.IPAddress)
		if err != nil {
			return nil, err
		}

		results = append(results, result)
	}

	if len(results) == 0 {
		return &Result{Allowed: true, Scope: "none"}, nil
	}

	var tightest *Result

	for _, result := range results {
		tightest = mostRestrictive(tightest, result)
	}

	return tightest, nil
}

// mostRestrictive picks the result with the smallest remaining budget.
// Denied results always dominate allowed ones.
func mostRestrictive(a, b *Result) *Result {
	if a == nil {
		return b
	}

	if b == nil {
		return a
	}

	if a.Allowed != b.Allowed {
		if a.Allowed {
			return b
		}

		return a
	}

	if b.Remaining < a.Remaining {
		return b
	}

	return a
}
