package executor

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andrej220/synctity/pkg/lg"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var ErrNoAuth = errors.New("no ssh authentication method configured")

// HostConfig describes how to reach a remote host.
type HostConfig struct {
	Addr           string        `yaml:"addr" json:"addr" validate:"required,hostname_port"`
	User           string        `yaml:"user" json:"user" validate:"required"`
	KeyPath        string        `yaml:"keyPath" json:"keyPath"`
	Password       string        `yaml:"password" json:"-"`
	KnownHostsPath string        `yaml:"knownHosts" json:"knownHosts"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
}

func publicKeyAuth(privateKeyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

// ClientConfig builds the ssh client configuration for h. Host keys are
// checked against KnownHostsPath when it is set; otherwise any host key is
// accepted and a warning is logged.
func (h HostConfig) ClientConfig(logger lg.Logger) (*ssh.ClientConfig, error) {
	if logger == nil {
		logger = lg.Discard
	}
	var auth []ssh.AuthMethod
	if h.KeyPath != "" {
		m, err := publicKeyAuth(h.KeyPath)
		if err != nil {
			return nil, err
		}
		auth = append(auth, m)
	}
	if h.Password != "" {
		auth = append(auth, ssh.Password(h.Password))
	}
	if len(auth) == 0 {
		return nil, ErrNoAuth
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if h.KnownHostsPath != "" {
		cb, err := knownhosts.New(h.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("known hosts: %w", err)
		}
		hostKey = cb
	} else {
		logger.Warn("Host key checking disabled", lg.String("addr", h.Addr))
	}

	timeout := h.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ssh.ClientConfig{
		User:            h.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
		BannerCallback:  func(string) error { return nil },
	}, nil
}
