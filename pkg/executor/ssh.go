package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/andrej220/synctity/pkg/lg"
	"github.com/andrej220/synctity/pkg/runner"
	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
)

// SSHLauncher runs every command in its own session on a remote host. The
// command line is handed to the remote shell as is.
type SSHLauncher struct {
	Client SessionOpener
	// Dir, when set, is the remote working directory.
	Dir    string
	Logger lg.Logger
}

var _ runner.Launcher = (*SSHLauncher)(nil)

func (l *SSHLauncher) Launch(ctx context.Context, command string) (runner.Process, error) {
	sess, err := l.Client.NewSession()
	if err != nil {
		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	line := command
	if l.Dir != "" {
		line = "cd " + shellquote.Join(l.Dir) + " && " + command
	}
	if err := sess.Start(line); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start: %w", err)
	}

	p := &sshProcess{sess: sess, stdout: stdout, stderr: stderr, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Kill()
		case <-p.done:
		}
	}()
	if l.Logger != nil {
		l.Logger.Debug("Remote command started", lg.String("command", command))
	}
	return p, nil
}

type sshProcess struct {
	sess   Session
	stdout io.Reader
	stderr io.Reader

	mu     sync.Mutex
	killed bool
	done   chan struct{}
}

func (p *sshProcess) Stdout() io.Reader { return p.stdout }
func (p *sshProcess) Stderr() io.Reader { return p.stderr }

func (p *sshProcess) Wait() (int, error) {
	err := p.sess.Wait()
	close(p.done)
	_ = p.sess.Close()

	p.mu.Lock()
	killed := p.killed
	p.mu.Unlock()
	return exitCode(err, killed)
}

// Kill asks the remote side to SIGKILL the command, then tears the session
// down so the output pipes reach EOF even when the server ignores signals.
func (p *sshProcess) Kill() error {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return nil
	}
	p.killed = true
	p.mu.Unlock()

	sigErr := p.sess.Signal(ssh.SIGKILL)
	if err := p.sess.Close(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("close session: %w", err)
	}
	if sigErr != nil && !errors.Is(sigErr, io.EOF) {
		return fmt.Errorf("signal: %w", sigErr)
	}
	return nil
}

// exitCode maps the result of Session.Wait to an exit code. A command that
// died on a signal or whose status never arrived reports runner.ExitUnknown.
func exitCode(err error, killed bool) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Signal() != "" {
			return runner.ExitUnknown, nil
		}
		return exitErr.ExitStatus(), nil
	}
	if killed {
		return runner.ExitUnknown, nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return runner.ExitUnknown, missing
	}
	return runner.ExitUnknown, err
}
