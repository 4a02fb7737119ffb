package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

// TestResolveSafePath_NeverEscapesWorkspaceWithoutRecovery generates random
// relative paths built from "..", path separators, and ordinary segments,
// and checks that resolveSafePath (with no recovery callback) only ever
// succeeds when the result is actually contained in the workspace: no
// combination of traversal segments lets a caller read or write outside it.
func TestResolveSafePath_NeverEscapesWorkspaceWithoutRecovery(t *testing.T) {
	s := newTestSandbox(t)

	segmentGen := rapid.SampledFrom([]string{
		"..", ".", "a", "b", "sub", "notes", "etc", "passwd", "..txt", "...",
	})

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "segments")
		parts := make([]string, n)
		for i := range parts {
			parts[i] = segmentGen.Draw(rt, "segment")
		}
		mode := AccessRead
		if rapid.Bool().Draw(rt, "write") {
			mode = AccessWrite
		}
		candidate := filepath.Join(parts...)

		resolved, err := s.resolveSafePath(context.Background(), candidate, mode, nil)
		if err != nil {
			return
		}
		if !isWithin(s.Workspace(), resolved) {
			rt.Fatalf("resolveSafePath accepted %q (mode=%v) resolving to %q, outside workspace %q",
				candidate, mode, resolved, s.Workspace())
		}
	})
}

// TestResolveSafePath_WriteNeverSucceedsAgainstReadOnlyMount checks that,
// whatever path is requested, a write-mode resolution never returns a
// path contained only by a read-only mount.
func TestResolveSafePath_WriteNeverSucceedsAgainstReadOnlyMount(t *testing.T) {
	s := newTestSandbox(t)
	roDir := t.TempDir()
	mustSucceed(t, os.WriteFile(filepath.Join(roDir, "f.txt"), []byte("x"), 0o644))
	mustSucceed(t, s.AddMount(Mount{HostPath: roDir, Mode: ModeReadOnly}))

	nameGen := rapid.SampledFrom([]string{"f.txt", "g.txt", "nested/h.txt", "missing.txt"})

	rapid.Check(t, func(rt *rapid.T) {
		name := nameGen.Draw(rt, "name")
		target := filepath.Join(roDir, name)

		_, err := s.resolveSafePath(context.Background(), target, AccessWrite, nil)
		if err == nil {
			rt.Fatalf("write to %q under read-only mount %q unexpectedly succeeded", target, roDir)
		}
	})
}

func mustSucceed(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
