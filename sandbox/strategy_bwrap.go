package sandbox

import (
	"os/exec"
)

// buildBwrapCommand wraps the target command with bubblewrap, binding
// the workspace read-write, every configured mount at its declared mode,
// and a minimal read-only view of the host's base filesystem so dynamic
// linking still works. Network namespace isolation follows AllowNetwork.
func (s *Sandbox) buildBwrapCommand(opts ExecOptions, dir string) (*exec.Cmd, error) {
	args := []string{
		"--die-with-parent",
		"--unshare-pid",
		"--unshare-ipc",
		"--unshare-uts",
		"--proc", "/proc",
		"--dev", "/dev",
		"--ro-bind", "/usr", "/usr",
		"--ro-bind", "/bin", "/bin",
		"--ro-bind", "/lib", "/lib",
	}
	args = append(args, optionalROBind("/lib64")...)
	args = append(args, optionalROBind("/etc/resolv.conf")...)

	if !s.allowNetwork {
		args = append(args, "--unshare-net")
	}

	args = append(args, "--bind", s.workspace, s.workspace)
	for _, m := range s.mounts {
		flag := "--ro-bind"
		if m.Mode == ModeReadWrite {
			flag = "--bind"
		}
		args = append(args, flag, m.HostPath, m.SandboxPath)
	}

	args = append(args, "--chdir", dir)
	args = append(args, opts.Command...)

	return exec.Command("bwrap", args...), nil
}

// optionalROBind includes a --ro-bind pair only if the host path exists;
// bwrap itself would otherwise fail hard on a missing source.
func optionalROBind(path string) []string {
	if !fileExists(path) {
		return nil
	}
	return []string{"--ro-bind", path, path}
}
