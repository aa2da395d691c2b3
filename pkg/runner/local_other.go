//go:build !unix

package runner

import "os/exec"

const (
	defaultShell = "cmd"
	shellFlag    = "/C"
)

func configure(cmd *exec.Cmd) {}

func kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
