package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/andrej220/synctity/pkg/lg"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
)

// ResilienceConfig holds the retry policy for dialing and the circuit
// breaker guarding session creation.
type ResilienceConfig struct {
	BackoffSettings        *backoff.ExponentialBackOff
	CircuitBreakerSettings gobreaker.Settings
}

// DefaultResilienceConfig gives up dialing after 30 seconds and opens the
// breaker after more than five consecutive session failures.
func DefaultResilienceConfig() *ResilienceConfig {
	return &ResilienceConfig{
		BackoffSettings: &backoff.ExponentialBackOff{
			InitialInterval:     500 * time.Millisecond,
			MaxInterval:         5 * time.Second,
			MaxElapsedTime:      30 * time.Second,
			Multiplier:          1.5,
			RandomizationFactor: 0.5,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		},
		CircuitBreakerSettings: gobreaker.Settings{
			Name:        "ssh-session",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		},
	}
}

// ResilientSSHClient keeps one SSH connection to a host. Dialing is retried
// with exponential backoff; sessions are opened through a circuit breaker
// and a dropped connection is redialed once before a session open fails.
type ResilientSSHClient struct {
	addr   string
	config *ssh.ClientConfig
	res    *ResilienceConfig
	cb     *gobreaker.CircuitBreaker
	logger lg.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewResilientClient dials addr and returns a connected client. Failures to
// reach the host are retried until the backoff policy or ctx gives up;
// handshake and authentication failures are not retried.
func NewResilientClient(ctx context.Context, addr string, config *ssh.ClientConfig, res *ResilienceConfig, logger lg.Logger) (*ResilientSSHClient, error) {
	if res == nil {
		res = DefaultResilienceConfig()
	}
	if logger == nil {
		logger = lg.Discard
	}
	c := &ResilientSSHClient{
		addr:   addr,
		config: config,
		res:    res,
		cb:     gobreaker.NewCircuitBreaker(res.CircuitBreakerSettings),
		logger: logger.With(lg.String("addr", addr)),
	}
	client, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.client = client
	return c, nil
}

func (c *ResilientSSHClient) dial(ctx context.Context) (*ssh.Client, error) {
	var client *ssh.Client
	operation := func() error {
		cl, err := ssh.Dial("tcp", c.addr, c.config)
		if err != nil {
			var netErr net.Error
			if !errors.As(err, &netErr) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("SSH dial failed, retrying", lg.Err(err))
			return err
		}
		client = cl
		return nil
	}
	// copy so concurrent dials do not share backoff state
	b := *c.res.BackoffSettings
	if err := backoff.Retry(operation, backoff.WithContext(&b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.addr, err)
	}
	c.logger.Info("SSH connection established")
	return client, nil
}

// NewSession opens a session on the current connection.
func (c *ResilientSSHClient) NewSession() (Session, error) {
	res, err := c.cb.Execute(func() (any, error) {
		c.mu.Lock()
		client := c.client
		c.mu.Unlock()

		sess, err := client.NewSession()
		if err == nil {
			return sess, nil
		}
		c.logger.Warn("SSH session failed, redialing", lg.Err(err))
		if client, err = c.redial(client); err != nil {
			return nil, err
		}
		return client.NewSession()
	})
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	return res.(*ssh.Session), nil
}

// redial replaces stale with a fresh connection unless another caller
// already did.
func (c *ResilientSSHClient) redial(stale *ssh.Client) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != stale {
		return c.client, nil
	}
	_ = stale.Close()
	client, err := c.dial(context.Background())
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *ResilientSSHClient) RemoteAddr() string { return c.addr }

func (c *ResilientSSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Close()
}
