package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AccessMode distinguishes a read request from a write request when
// resolving a path: a write into a read-only mount is denied even though
// the same path is readable.
type AccessMode int

const (
	AccessRead AccessMode = iota
	AccessWrite
)

func (m AccessMode) String() string {
	if m == AccessWrite {
		return "write"
	}
	return "read"
}

// SandboxAccessError is returned when a path resolves outside every
// permitted root and no recovery callback grants access, or when a write
// targets a mount that is mounted read-only.
type SandboxAccessError struct {
	Requested string
	Resolved  string
	Mode      AccessMode
	Reason    string
}

func (e *SandboxAccessError) Error() string {
	return fmt.Sprintf("sandbox: %s access denied for %q (resolved %q): %s", e.Mode, e.Requested, e.Resolved, e.Reason)
}

// AccessRecovery is consulted when a requested path falls outside every
// permitted root. Returning (true, false) grants a one-time allow for
// exactly the resolved path: this request succeeds, and the next access to
// that path consumes the grant. Returning (true, true) instead mounts the
// containing directory read-write for the remainder of the sandbox's
// lifetime.
type AccessRecovery func(ctx context.Context, requested string) (allow bool, always bool)

// canonicalize resolves path to an absolute, symlink-free form. It does
// not require the path to exist; existing ancestors are resolved via
// filepath.EvalSymlinks and the remaining (not-yet-created) suffix is
// appended verbatim.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	// Walk up to the deepest existing ancestor, resolve it, then
	// reattach the missing suffix.
	var suffix []string
	cur := abs
	for {
		if _, statErr := os.Lstat(cur); statErr == nil {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		suffix = append([]string{filepath.Base(cur)}, suffix...)
		cur = parent
	}
	resolvedBase, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolvedBase}, suffix...)...), nil
}

// resolveSafePath resolves requested (absolute or relative to the
// sandbox's workspace) and confirms it is contained within the workspace
// or one of the sandbox's mounted roots, honoring mode: a write must land
// in the workspace itself or a mount whose Mode is ModeReadWrite. If
// containment fails, recovery (when non-nil) is given one chance to grant
// access.
func (s *Sandbox) resolveSafePath(ctx context.Context, requested string, mode AccessMode, recovery AccessRecovery) (string, error) {
	if strings.ContainsRune(requested, 0) {
		return "", &SandboxAccessError{Requested: requested, Mode: mode, Reason: "path contains a NUL byte"}
	}

	raw := requested
	if !filepath.IsAbs(raw) {
		raw = filepath.Join(s.workspace, raw)
	}

	resolved, err := canonicalize(raw)
	if err != nil {
		return "", &SandboxAccessError{Requested: requested, Mode: mode, Reason: "could not resolve path: " + err.Error()}
	}

	s.mu.Lock()
	contained := s.containedLocked(resolved, mode)
	_, onceAllowed := s.oneTimeAllows[resolved]
	if onceAllowed && !contained {
		// A one-time allow is consumed by the access that relies on it.
		delete(s.oneTimeAllows, resolved)
	}
	s.mu.Unlock()

	if contained || onceAllowed {
		return resolved, nil
	}

	if recovery == nil {
		return "", &SandboxAccessError{Requested: requested, Resolved: resolved, Mode: mode, Reason: "outside sandbox workspace and writable mounts"}
	}

	allow, always := recovery(ctx, resolved)
	if !allow {
		return "", &SandboxAccessError{Requested: requested, Resolved: resolved, Mode: mode, Reason: "recovery denied access"}
	}
	if always {
		if err := s.AddMount(Mount{HostPath: filepath.Dir(resolved), SandboxPath: filepath.Dir(resolved), Mode: ModeReadWrite}); err != nil {
			return "", err
		}
	} else {
		s.mu.Lock()
		s.oneTimeAllows[resolved] = struct{}{}
		s.mu.Unlock()
	}
	return resolved, nil
}

// containedLocked reports whether resolved falls within the workspace or
// any configured mount whose mode permits the requested access. A mount
// that is ModeReadOnly satisfies an AccessRead but never an AccessWrite.
// Caller must hold s.mu.
func (s *Sandbox) containedLocked(resolved string, mode AccessMode) bool {
	if isWithin(s.workspace, resolved) {
		return true
	}
	for _, m := range s.mounts {
		if !isWithin(m.HostPath, resolved) {
			continue
		}
		if mode == AccessWrite && m.Mode != ModeReadWrite {
			return false
		}
		return true
	}
	return false
}

// isWithin reports whether target is root itself or a descendant of it.
func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
