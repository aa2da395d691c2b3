package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

const (
	// ExitLaunchFailed is reported when a command could not be started.
	ExitLaunchFailed = -2
	// ExitUnknown is reported when a process ended without an exit status,
	// e.g. it was killed by a signal.
	ExitUnknown = -1
)

// Launcher starts one shell command as an external process.
type Launcher interface {
	Launch(ctx context.Context, command string) (Process, error)
}

// Process is a started command. Wait is called while Stdout and Stderr are
// still being read. Once Wait returned, readers that implement io.Closer are
// closed after a bounded drain; readers that do not must reach EOF on their
// own.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its exit code. A
	// non-nil error does not by itself mean the code is meaningless; a
	// non-zero exit is reported as a code, not an error.
	Wait() (int, error)
	// Kill terminates the process forcibly. It is safe to call more than
	// once and after the process exited.
	Kill() error
}

// LauncherFunc adapts a function to a Launcher.
type LauncherFunc func(ctx context.Context, command string) (Process, error)

func (f LauncherFunc) Launch(ctx context.Context, command string) (Process, error) {
	return f(ctx, command)
}

// LocalLauncher runs commands through a shell on this machine.
type LocalLauncher struct {
	// Shell is the interpreter invoked with "-c" (or "/C" on Windows).
	// Empty selects the platform default.
	Shell string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the current environment.
	Env []string
}

func (l *LocalLauncher) Launch(ctx context.Context, command string) (Process, error) {
	cmd := exec.CommandContext(ctx, l.shell(), shellFlag, command)
	cmd.Dir = l.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	configure(cmd)

	// Plain pipes rather than cmd.StdoutPipe: Wait then returns when the
	// shell exits, even if a background child keeps the write ends open.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdout, stdoutW)
		return nil, err
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	err = cmd.Start()
	closeAll(stdoutW, stderrW)
	if err != nil {
		closeAll(stdout, stderr)
		return nil, err
	}
	return &localProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func (l *LocalLauncher) shell() string {
	if l.Shell != "" {
		return l.Shell
	}
	return defaultShell
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *localProcess) Stdout() io.Reader { return p.stdout }
func (p *localProcess) Stderr() io.Reader { return p.stderr }

func (p *localProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	code := exitCodeFrom(err, p.cmd.ProcessState)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// the exit code already says it
		err = nil
	}
	return code, err
}

func (p *localProcess) Kill() error {
	err := kill(p.cmd)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func exitCodeFrom(waitErr error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ProcessState != nil {
		return exitErr.ProcessState.ExitCode()
	}
	return ExitUnknown
}
