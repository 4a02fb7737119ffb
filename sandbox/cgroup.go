package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const cgroupV2Root = "/sys/fs/cgroup"

// createCgroup creates a dedicated cgroups v2 leaf for this sandbox and
// writes its configured limits. Failures are non-fatal to the caller:
// New() logs and continues without resource limiting when this fails.
func (s *Sandbox) createCgroup() (string, error) {
	path := filepath.Join(cgroupV2Root, "agentrt", s.id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create cgroup dir: %w", err)
	}

	if s.memoryLimit > 0 {
		if err := writeCgroupFile(path, "memory.max", strconv.FormatInt(s.memoryLimit, 10)); err != nil {
			return "", err
		}
	}
	if s.pidsLimit > 0 {
		if err := writeCgroupFile(path, "pids.max", strconv.FormatInt(s.pidsLimit, 10)); err != nil {
			return "", err
		}
	}
	if s.cpuQuota > 0 {
		// cpu.max is "$MAX $PERIOD" in microseconds; a 100ms period is the
		// kernel default and keeps the quota math simple.
		const periodUS = 100000
		quotaUS := int64(s.cpuQuota * periodUS)
		if err := writeCgroupFile(path, "cpu.max", fmt.Sprintf("%d %d", quotaUS, periodUS)); err != nil {
			return "", err
		}
	}
	return path, nil
}

func writeCgroupFile(cgroupPath, file, value string) error {
	return os.WriteFile(filepath.Join(cgroupPath, file), []byte(value), 0o644)
}

// addToCgroup moves pid into this sandbox's cgroup. A failure here is
// logged and swallowed: the process still runs, just without the
// resource cap.
func (s *Sandbox) addToCgroup(ctx context.Context, pid int) {
	if s.cgroupPath == "" {
		return
	}
	if err := os.WriteFile(filepath.Join(s.cgroupPath, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		s.logger.Warn(ctx, "sandbox: failed to attach process to cgroup", "pid", pid, "err", err)
	}
}

// removeCgroup deletes this sandbox's cgroup leaf. Best-effort: a cgroup
// with processes still attached cannot be removed until they exit, which
// is expected to already be true by the time Destroy calls this.
func (s *Sandbox) removeCgroup() {
	if s.cgroupPath == "" {
		return
	}
	_ = os.Remove(s.cgroupPath)
}
