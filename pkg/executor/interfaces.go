package executor

import (
	"io"

	"golang.org/x/crypto/ssh"
)

// Session is the part of *ssh.Session the launcher drives.
type Session interface {
	StdoutPipe() (io.Reader, error)
	StderrPipe() (io.Reader, error)
	Start(cmd string) error
	Wait() error
	Signal(sig ssh.Signal) error
	Close() error
}

// SessionOpener opens one session per command on a remote host.
type SessionOpener interface {
	NewSession() (Session, error)
}

var _ Session = (*ssh.Session)(nil)
