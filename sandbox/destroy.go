package sandbox

import (
	"context"
	"os"
	"syscall"
)

// Destroy sends SIGKILL to the process group of every Exec call still in
// progress, tears down its cgroup, and removes the workspace if it was
// auto-created by New. Idempotent: a second call is a no-op.
func (s *Sandbox) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	procs := make([]*processHandle, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	owned := s.workspaceOwned
	workspace := s.workspace
	s.mu.Unlock()

	for _, p := range procs {
		_ = syscall.Kill(-p.pid, syscall.SIGKILL)
	}

	s.removeCgroup()

	if owned {
		if err := os.RemoveAll(workspace); err != nil {
			s.logger.Warn(ctx, "sandbox: failed to remove workspace on destroy", "workspace", workspace, "err", err)
		}
	}

	return nil
}
