package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesFileOverridesOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  maxTicks: 5
sandbox:
  allowNetwork: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.MaxTicks)
	assert.Equal(t, 10, cfg.Engine.MaxIterations, "unset fields keep the default")
	assert.True(t, cfg.Sandbox.AllowNetwork)
}

func TestLoad_ReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestToolsConfig_RateLimiterNilWhenUnconfigured(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.Tools.RateLimiter())
}

func TestToolsConfig_RateLimiterConstructedFromConfig(t *testing.T) {
	cfg := Default()
	cfg.Tools.RateLimitPerSecond = 10
	cfg.Tools.RateLimitBurst = 2
	assert.NotNil(t, cfg.Tools.RateLimiter())
}

func TestSandboxConfig_ToSandboxConfigMapsStrategy(t *testing.T) {
	cfg := Default()
	cfg.Sandbox.Strategy = "none"
	sc := cfg.Sandbox.ToSandboxConfig()
	assert.Equal(t, "none", string(sc.Strategy))
}
