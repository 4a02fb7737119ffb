package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadFile resolves path against the sandbox's containment rules and
// returns its contents.
func (s *Sandbox) ReadFile(ctx context.Context, path string, recovery AccessRecovery) ([]byte, error) {
	if err := s.checkDestroyed(); err != nil {
		return nil, err
	}
	resolved, err := s.resolveSafePath(ctx, path, AccessRead, recovery)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

// WriteFile resolves path against the sandbox's containment rules and
// atomically replaces its contents: the new contents are written to a
// temp file in the same directory, then renamed over path so a reader
// never observes a partial write.
func (s *Sandbox) WriteFile(ctx context.Context, path string, contents []byte, recovery AccessRecovery) error {
	if err := s.checkDestroyed(); err != nil {
		return err
	}
	resolved, err := s.resolveSafePath(ctx, path, AccessWrite, recovery)
	if err != nil {
		return err
	}
	return atomicWriteFile(resolved, contents)
}

// EditFile performs a single literal find/replace on the file at path.
// It returns an error if oldText does not occur, or occurs more than
// once and replaceAll is false.
func (s *Sandbox) EditFile(ctx context.Context, path, oldText, newText string, replaceAll bool, recovery AccessRecovery) error {
	if err := s.checkDestroyed(); err != nil {
		return err
	}
	resolved, err := s.resolveSafePath(ctx, path, AccessWrite, recovery)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}
	content := string(raw)

	count := strings.Count(content, oldText)
	if count == 0 {
		return fmt.Errorf("sandbox: edit target text not found in %q", path)
	}
	if count > 1 && !replaceAll {
		return fmt.Errorf("sandbox: edit target text is not unique in %q (%d occurrences)", path, count)
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(content, oldText, newText)
	} else {
		updated = strings.Replace(content, oldText, newText, 1)
	}
	return atomicWriteFile(resolved, []byte(updated))
}

// atomicWriteFile writes contents to a temp file alongside path and
// renames it into place, so a concurrent reader of path never observes a
// partially written file.
func atomicWriteFile(path string, contents []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sandbox-write-*")
	if err != nil {
		return fmt.Errorf("sandbox: create temp file for write: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(contents); err != nil {
		tmp.Close()
		return fmt.Errorf("sandbox: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sandbox: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("sandbox: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("sandbox: rename temp file into place: %w", err)
	}
	return nil
}
