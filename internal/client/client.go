// Package client delivers commands to the daemon, starting it on demand.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Techno-coder/pmu/internal/daemon"
	"github.com/rs/zerolog"
)

// ErrDaemonStartTimeout is returned when a spawned daemon does not accept
// connections within the connect timeout.
var ErrDaemonStartTimeout = errors.New("daemon failed to start")

// ErrDaemonNotRunning is returned by SendRunning when nothing is listening.
var ErrDaemonNotRunning = errors.New("daemon is not running")

const defaultPollInterval = 10 * time.Millisecond

// Config holds client configuration
type Config struct {
	Port           int
	ConnectTimeout time.Duration
	LockFile       string // Path to the daemon pid file
}

// Spawner starts a daemon process in the background and returns its pid.
type Spawner interface {
	Spawn() (int, error)
}

// Client sends commands to the daemon.
type Client struct {
	config       Config
	spawner      Spawner
	dial         func(ctx context.Context, addr string) (net.Conn, error)
	pollInterval time.Duration
	logger       zerolog.Logger
}

// New creates a new Client
func New(cfg Config, spawner Spawner, logger zerolog.Logger) *Client {
	var d net.Dialer
	return &Client{
		config:       cfg,
		spawner:      spawner,
		dial:         func(ctx context.Context, addr string) (net.Conn, error) { return d.DialContext(ctx, "tcp", addr) },
		pollInterval: defaultPollInterval,
		logger:       logger.With().Str("component", "client").Logger(),
	}
}

// Send delivers cmd to the daemon. If no daemon is listening, one is spawned
// and the connection retried until ConnectTimeout elapses.
func (c *Client) Send(ctx context.Context, cmd daemon.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return daemon.Encode(conn, cmd)
}

// SendRunning delivers cmd only if a daemon is already listening. It never
// spawns one.
func (c *Client) SendRunning(ctx context.Context, cmd daemon.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	conn, err := c.dial(ctx, daemon.Address(c.config.Port))
	if err != nil {
		if isRefused(err) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer conn.Close()

	return daemon.Encode(conn, cmd)
}

func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	addr := daemon.Address(c.config.Port)

	conn, err := c.dial(ctx, addr)
	if err == nil {
		return conn, nil
	}
	if !isRefused(err) {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	spawned, err := c.spawnOnce()
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		conn, err := c.dial(waitCtx, addr)
		if err == nil {
			return conn, nil
		}
		if !isRefused(err) && waitCtx.Err() == nil {
			return nil, fmt.Errorf("failed to connect to daemon: %w", err)
		}

		// The lock may belong to a daemon that is shutting down. Once it
		// exits, start a new one.
		if !spawned && waitCtx.Err() == nil {
			if spawned, err = c.spawnOnce(); err != nil {
				return nil, err
			}
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: nothing listening on %s after %s", ErrDaemonStartTimeout, addr, c.config.ConnectTimeout)
		case <-ticker.C:
		}
	}
}

// spawnOnce starts a daemon unless another process already is one or is
// in the middle of starting one. It reports whether it spawned.
func (c *Client) spawnOnce() (bool, error) {
	lock := pidLock{path: c.config.LockFile, fresh: c.config.ConnectTimeout}

	acquired, err := lock.acquire()
	if err != nil {
		return false, fmt.Errorf("failed to acquire daemon lock: %w", err)
	}
	if !acquired {
		return false, nil
	}

	pid, err := c.spawner.Spawn()
	if err != nil {
		lock.release()
		return false, fmt.Errorf("failed to spawn daemon: %w", err)
	}
	c.logger.Debug().Int("pid", pid).Msg("Spawned daemon")

	if err := lock.write(pid); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record daemon pid")
	}
	return true, nil
}
