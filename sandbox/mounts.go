package sandbox

import (
	"fmt"
	"sort"
)

// AddMount adds a host path to the sandbox's visible filesystem. Safe to
// call after construction; strategies that build their process
// invocation args per-Exec will pick up the new mount on the next call.
func (s *Sandbox) AddMount(m Mount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addMountLocked(m)
}

func (s *Sandbox) addMountLocked(m Mount) error {
	if m.Mode == "" {
		m.Mode = ModeReadOnly
	}
	resolved, err := canonicalize(m.HostPath)
	if err != nil {
		return fmt.Errorf("sandbox: resolve mount %q: %w", m.HostPath, err)
	}
	m.HostPath = resolved
	if m.SandboxPath == "" {
		m.SandboxPath = m.HostPath
	}
	s.mounts = append(s.mounts, m)
	s.mounts = consolidateMounts(s.mounts)
	return nil
}

// Mounts returns a snapshot of the sandbox's currently configured mounts.
func (s *Sandbox) Mounts() []Mount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Mount, len(s.mounts))
	copy(out, s.mounts)
	return out
}

// consolidateMounts drops mounts that are redundant because an ancestor
// directory is already mounted with at least as permissive a mode,
// and upgrades a previously read-only ancestor mount when a descendant
// requests read-write. The result is independent of input order.
func consolidateMounts(mounts []Mount) []Mount {
	sorted := make([]Mount, len(mounts))
	copy(sorted, mounts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].HostPath) < len(sorted[j].HostPath)
	})

	var kept []Mount
	for _, m := range sorted {
		absorbed := false
		for i := range kept {
			if kept[i].HostPath == m.HostPath {
				if m.Mode == ModeReadWrite {
					kept[i].Mode = ModeReadWrite
				}
				absorbed = true
				break
			}
			if isWithin(kept[i].HostPath, m.HostPath) {
				if m.Mode == ModeReadWrite && kept[i].Mode != ModeReadWrite {
					kept[i].Mode = ModeReadWrite
				}
				absorbed = true
				break
			}
		}
		if !absorbed {
			kept = append(kept, m)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].HostPath < kept[j].HostPath })
	return kept
}
