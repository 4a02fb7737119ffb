package sandbox

import "os/exec"

// buildUnshareCommand is the bubblewrap fallback for hosts with
// unprivileged user namespaces but no bwrap binary: it isolates the
// mount, PID, IPC, and (unless AllowNetwork) network namespaces, relying
// on resolveSafePath rather than bind-mount filtering to keep the
// process within the workspace and configured mounts.
func (s *Sandbox) buildUnshareCommand(opts ExecOptions, dir string) (*exec.Cmd, error) {
	args := []string{"--map-root-user", "--pid", "--mount", "--ipc", "--fork"}
	if !s.allowNetwork {
		args = append(args, "--net")
	}
	args = append(args, "--", opts.Command[0])
	args = append(args, opts.Command[1:]...)

	cmd := exec.Command("unshare", args...)
	cmd.Dir = dir
	return cmd, nil
}
