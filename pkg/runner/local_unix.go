//go:build unix

package runner

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	defaultShell = "/bin/sh"
	shellFlag    = "-c"
)

// configure puts the shell in its own process group so a kill reaches the
// commands it spawned, not just the shell.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return kill(cmd) }
}

func kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		// group already gone, make sure the leader is too
		return cmd.Process.Kill()
	}
	return err
}
