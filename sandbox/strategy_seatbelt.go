package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// buildSeatbeltCommand writes a generated SBPL profile to a temp file
// and invokes the target command through sandbox-exec -f.
func (s *Sandbox) buildSeatbeltCommand(opts ExecOptions, dir string) (*exec.Cmd, error) {
	profile := s.generateSBPL()

	f, err := os.CreateTemp("", "agentrt-seatbelt-*.sb")
	if err != nil {
		return nil, fmt.Errorf("sandbox: write seatbelt profile: %w", err)
	}
	if _, err := f.WriteString(profile); err != nil {
		f.Close()
		return nil, fmt.Errorf("sandbox: write seatbelt profile: %w", err)
	}
	f.Close()

	args := append([]string{"-f", f.Name()}, opts.Command...)
	cmd := exec.Command("sandbox-exec", args...)
	cmd.Dir = dir
	return cmd, nil
}

// generateSBPL emits an Apple Seatbelt (SBPL) profile denying everything
// by default, then re-permitting process execution, the workspace and
// configured mounts, and (conditionally) outbound network.
func (s *Sandbox) generateSBPL() string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")
	b.WriteString("(allow process-fork)\n")
	b.WriteString("(allow process-exec)\n")
	b.WriteString("(allow file-read* (subpath \"/usr\") (subpath \"/bin\") (subpath \"/System\") (subpath \"/Library\"))\n")

	fmt.Fprintf(&b, "(allow file-read* file-write* (subpath %q))\n", s.workspace)
	for _, m := range s.mounts {
		if m.Mode == ModeReadWrite {
			fmt.Fprintf(&b, "(allow file-read* file-write* (subpath %q))\n", m.HostPath)
		} else {
			fmt.Fprintf(&b, "(allow file-read* (subpath %q))\n", m.HostPath)
		}
	}

	if s.allowNetwork {
		b.WriteString("(allow network*)\n")
	} else {
		b.WriteString("(deny network*)\n")
	}

	return b.String()
}
