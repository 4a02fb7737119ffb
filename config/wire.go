package config

import (
	"golang.org/x/time/rate"

	"github.com/agentrt/core/sandbox"
)

// ToSandboxConfig converts the YAML-shaped SandboxConfig into the
// sandbox package's construction-time Config.
func (s SandboxConfig) ToSandboxConfig() sandbox.Config {
	return sandbox.Config{
		Strategy:         sandbox.Strategy(s.Strategy),
		Workspace:        s.Workspace,
		AllowNetwork:     s.AllowNetwork,
		DefaultTimeout:   s.DefaultTimeout,
		CPUQuota:         s.CPUQuota,
		MemoryLimitBytes: s.MemoryLimitBytes,
		PidsLimit:        s.PidsLimit,
	}
}

// RateLimiter constructs a token-bucket limiter from ToolsConfig, or nil
// if rate limiting is not configured.
func (t ToolsConfig) RateLimiter() *rate.Limiter {
	if t.RateLimitPerSecond <= 0 {
		return nil
	}
	burst := t.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(t.RateLimitPerSecond), burst)
}
