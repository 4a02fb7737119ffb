package sandbox

import (
	"fmt"
	"os/exec"
	"path/filepath"
)

// buildCommand constructs the *exec.Cmd that will run opts.Command under
// this sandbox's selected strategy.
func (s *Sandbox) buildCommand(opts ExecOptions) (*exec.Cmd, error) {
	dir := s.workspace
	if opts.Dir != "" {
		dir = filepath.Join(s.workspace, opts.Dir)
	}

	switch s.strategy {
	case StrategyNone:
		return s.buildNoneCommand(opts, dir)
	case StrategyBwrap:
		return s.buildBwrapCommand(opts, dir)
	case StrategyUnshare:
		return s.buildUnshareCommand(opts, dir)
	case StrategySeatbelt:
		return s.buildSeatbeltCommand(opts, dir)
	default:
		return nil, fmt.Errorf("sandbox: unknown strategy %q", s.strategy)
	}
}

func (s *Sandbox) buildNoneCommand(opts ExecOptions, dir string) (*exec.Cmd, error) {
	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = dir
	return cmd, nil
}
