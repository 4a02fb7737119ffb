// Package config defines YAML-loadable configuration for constructing an
// engine, sandbox, and tool executor from a single file, following the
// same tagged-struct-plus-Default-constructor convention the rest of
// this module's ambient stack uses.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Tools   ToolsConfig   `yaml:"tools"`
}

// EngineConfig configures tick-loop bounds.
type EngineConfig struct {
	MaxTicks      int `yaml:"maxTicks"`
	MaxIterations int `yaml:"maxIterations"`
}

// SandboxConfig configures the sandbox kernel.
type SandboxConfig struct {
	Strategy         string        `yaml:"strategy"`
	Workspace        string        `yaml:"workspace"`
	AllowNetwork     bool          `yaml:"allowNetwork"`
	DefaultTimeout   time.Duration `yaml:"defaultTimeout"`
	CPUQuota         float64       `yaml:"cpuQuota"`
	MemoryLimitBytes int64         `yaml:"memoryLimitBytes"`
	PidsLimit        int64         `yaml:"pidsLimit"`
}

// ToolsConfig configures the tool executor.
type ToolsConfig struct {
	ConfirmationTimeout time.Duration `yaml:"confirmationTimeout"`
	DefaultTimeout      time.Duration `yaml:"defaultTimeout"`
	RateLimitPerSecond  float64       `yaml:"rateLimitPerSecond"`
	RateLimitBurst      int           `yaml:"rateLimitBurst"`
	RedisAddr           string        `yaml:"redisAddr"`
	RedisKeyPrefix      string        `yaml:"redisKeyPrefix"`
}

// Default returns a Config populated with the same defaults each
// component applies on its own when left unconfigured.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MaxTicks:      25,
			MaxIterations: 10,
		},
		Sandbox: SandboxConfig{
			Strategy:       "",
			AllowNetwork:   false,
			DefaultTimeout: 5 * time.Minute,
		},
		Tools: ToolsConfig{
			ConfirmationTimeout: 30 * time.Second,
			DefaultTimeout:      60 * time.Second,
		},
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default() so any field the file omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}
