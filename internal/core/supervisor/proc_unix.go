//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcGroup places the child in its own process group so the whole
// tree can be signalled at once.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree kills the child's entire process group. Engines spawn their
// own helpers (ffmpeg, CUDA workers); killing only the direct child would
// orphan them.
func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
