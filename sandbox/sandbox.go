// Package sandbox implements the execution sandbox kernel: a
// strategy-selected process supervisor (macOS Seatbelt / Linux bubblewrap
// or unshare / unsandboxed) with workspace isolation, symlink-safe path
// resolution, one-time access grants, output capping, timeout enforcement,
// and cgroup-based resource limits.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/agentrt/core/telemetry"
)

// Strategy is the sandbox isolation mechanism in use.
type Strategy string

const (
	StrategySeatbelt Strategy = "seatbelt"
	StrategyBwrap    Strategy = "bwrap"
	StrategyUnshare  Strategy = "unshare"
	StrategyNone     Strategy = "none"
)

// Mount maps a host path into the sandbox's view of the filesystem.
type Mount struct {
	HostPath    string
	SandboxPath string
	Mode        MountMode
}

// MountMode is a mount's access mode.
type MountMode string

const (
	ModeReadOnly  MountMode = "ro"
	ModeReadWrite MountMode = "rw"
)

// StrategyUnavailable is returned when a caller explicitly requests a
// strategy the host cannot support.
type StrategyUnavailable struct {
	Requested Strategy
	Reason    string
}

func (e *StrategyUnavailable) Error() string {
	return fmt.Sprintf("sandbox: strategy %q unavailable: %s", e.Requested, e.Reason)
}

// SandboxDestroyed is returned by any operation attempted after Destroy.
type SandboxDestroyed struct{ ID string }

func (e *SandboxDestroyed) Error() string { return fmt.Sprintf("sandbox %q already destroyed", e.ID) }

// Capabilities probes what isolation mechanisms the host supports.
type Capabilities struct {
	HasSandboxExec bool
	HasBwrap       bool
	HasUnshare     bool
	HasCgroupsV2   bool
	HasUserNS      bool
}

// ProbeCapabilities inspects the host for available sandboxing primitives.
func ProbeCapabilities() Capabilities {
	caps := Capabilities{}
	if runtime.GOOS == "darwin" {
		caps.HasSandboxExec = binaryExists("sandbox-exec")
	}
	if runtime.GOOS == "linux" {
		caps.HasBwrap = binaryExists("bwrap")
		caps.HasUnshare = binaryExists("unshare")
		caps.HasUserNS = fileExists("/proc/sys/user/max_user_namespaces")
		caps.HasCgroupsV2 = isWritableDir("/sys/fs/cgroup")
	}
	return caps
}

func binaryExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// isWritableDir reports whether path looks like a mounted, writable
// cgroups v2 unified hierarchy. The unified hierarchy always exposes
// cgroup.controllers at its root; its absence means cgroups v2 is not
// mounted (hybrid v1 or unmounted).
func isWritableDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if _, err := os.Stat(filepath.Join(path, "cgroup.controllers")); err != nil {
		return false
	}
	probe, err := os.CreateTemp(path, ".agentrt-probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true
}

// Config configures a Sandbox at creation time.
type Config struct {
	// Strategy overrides automatic selection. Empty means auto-select.
	Strategy Strategy

	// Workspace is the sandbox's root writable directory. Empty means
	// auto-generate one under os.TempDir with mode 0700.
	Workspace string

	// Mounts are host paths exposed inside the sandbox.
	Mounts []Mount

	// AllowNetwork permits outbound network access when the strategy
	// supports filtering it.
	AllowNetwork bool

	// DefaultTimeout applies to Exec calls that do not specify one.
	DefaultTimeout time.Duration

	// CPUQuota is the fraction of one CPU core allotted via cgroups
	// (e.g. 1.5 = 150%). Zero disables the cgroup CPU limit.
	CPUQuota float64

	// MemoryLimitBytes, when non-zero, sets cgroups memory.max.
	MemoryLimitBytes int64

	// PidsLimit, when non-zero, sets cgroups pids.max.
	PidsLimit int64

	// ParentEnv, when non-nil, is filtered (minus the blocklisted
	// dynamic-linker variables) and merged into the base environment.
	ParentEnv []string

	Logger telemetry.Logger
}

const defaultExecTimeout = 5 * time.Minute

// processHandle tracks the process group of one Exec call while that call
// runs, so Destroy can signal it; Exec removes the handle when it returns.
type processHandle struct {
	pid       int
	cgroup    string
	command   string
	startedAt time.Time
}

// Sandbox executes shell commands and file operations under OS-level
// isolation selected at creation time.
type Sandbox struct {
	mu sync.Mutex

	id       string
	strategy Strategy
	caps     Capabilities

	workspace     string
	workspaceOwned bool

	mounts []Mount

	allowNetwork   bool
	defaultTimeout time.Duration
	cpuQuota       float64
	memoryLimit    int64
	pidsLimit      int64
	parentEnv      []string

	oneTimeAllows map[string]struct{}

	cgroupPath string

	processes map[int]*processHandle

	destroyed bool

	logger telemetry.Logger
}

// New creates a Sandbox: probes capabilities, selects (or validates an
// override) strategy, resolves/creates the workspace, and canonicalizes
// configured mounts.
func New(id string, cfg Config) (*Sandbox, error) {
	caps := ProbeCapabilities()
	strategy, err := selectStrategy(cfg.Strategy, caps)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	workspace := cfg.Workspace
	owned := false
	if workspace == "" {
		dir, err := os.MkdirTemp("", "agentrt-sandbox-*")
		if err != nil {
			return nil, fmt.Errorf("sandbox: create workspace: %w", err)
		}
		if err := os.Chmod(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sandbox: chmod workspace: %w", err)
		}
		workspace = dir
		owned = true
	}
	canonWorkspace, err := canonicalize(workspace)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve workspace: %w", err)
	}

	s := &Sandbox{
		id:             id,
		strategy:       strategy,
		caps:           caps,
		workspace:      canonWorkspace,
		workspaceOwned: owned,
		allowNetwork:   cfg.AllowNetwork,
		defaultTimeout: cfg.DefaultTimeout,
		cpuQuota:       cfg.CPUQuota,
		memoryLimit:    cfg.MemoryLimitBytes,
		pidsLimit:      cfg.PidsLimit,
		parentEnv:      cfg.ParentEnv,
		oneTimeAllows:  make(map[string]struct{}),
		processes:      make(map[int]*processHandle),
		logger:         logger,
	}
	if s.defaultTimeout <= 0 {
		s.defaultTimeout = defaultExecTimeout
	}

	for _, m := range cfg.Mounts {
		if err := s.addMountLocked(m); err != nil {
			return nil, err
		}
	}

	if caps.HasCgroupsV2 {
		if path, err := s.createCgroup(); err == nil {
			s.cgroupPath = path
		} else {
			s.logger.Warn(context.Background(), "sandbox: cgroup setup failed, degrading silently", "err", err)
		}
	}

	return s, nil
}

func selectStrategy(requested Strategy, caps Capabilities) (Strategy, error) {
	if requested != "" {
		if !strategyAvailable(requested, caps) {
			return "", &StrategyUnavailable{Requested: requested, Reason: "required capability not present on this host"}
		}
		return requested, nil
	}

	if runtime.GOOS == "linux" {
		if caps.HasBwrap {
			return StrategyBwrap, nil
		}
		if caps.HasUnshare && caps.HasUserNS {
			return StrategyUnshare, nil
		}
		return StrategyNone, nil
	}
	if runtime.GOOS == "darwin" {
		if caps.HasSandboxExec {
			return StrategySeatbelt, nil
		}
		return StrategyNone, nil
	}
	return StrategyNone, nil
}

func strategyAvailable(s Strategy, caps Capabilities) bool {
	switch s {
	case StrategySeatbelt:
		return caps.HasSandboxExec
	case StrategyBwrap:
		return caps.HasBwrap
	case StrategyUnshare:
		return caps.HasUnshare
	case StrategyNone:
		return true
	default:
		return false
	}
}

// Strategy reports the isolation mechanism in use.
func (s *Sandbox) Strategy() Strategy { return s.strategy }

// Workspace reports the sandbox's canonical workspace path.
func (s *Sandbox) Workspace() string { return s.workspace }

func (s *Sandbox) checkDestroyed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return &SandboxDestroyed{ID: s.id}
	}
	return nil
}
