//go:build unix

package executor

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sys/unix"
)

const (
	testUser     = "sync"
	testPassword = "secret"
)

// testServer is a minimal SSH server that runs exec requests with /bin/sh.
type testServer struct {
	addr    string
	hostKey ssh.PublicKey
	ln      net.Listener
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg)
		}
	}()
	return &testServer{addr: ln.Addr().String(), hostKey: signer.PublicKey(), ln: ln}
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, creqs, err := nc.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, creqs)
	}
}

func serveSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	var (
		mu  sync.Mutex
		cmd *exec.Cmd
	)
	kill := func() {
		mu.Lock()
		defer mu.Unlock()
		if cmd != nil && cmd.Process != nil {
			_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		}
	}
	defer kill()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			c := exec.Command("/bin/sh", "-c", payload.Command)
			c.Stdout = ch
			c.Stderr = ch.Stderr()
			c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
			c.WaitDelay = time.Second
			mu.Lock()
			cmd = c
			err := c.Start()
			mu.Unlock()
			if err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func() {
				status := 0
				if err := c.Wait(); err != nil {
					var exitErr *exec.ExitError
					if !errors.As(err, &exitErr) || exitErr.ExitCode() < 0 {
						ch.Close()
						return
					}
					status = exitErr.ExitCode()
				}
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
				ch.Close()
			}()
		case "signal":
			kill()
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func fastResilience() *ResilienceConfig {
	res := DefaultResilienceConfig()
	res.BackoffSettings.InitialInterval = 10 * time.Millisecond
	res.BackoffSettings.MaxInterval = 50 * time.Millisecond
	res.BackoffSettings.MaxElapsedTime = 300 * time.Millisecond
	return res
}
