package ssh

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client implements Transport over a single SSH connection.
type Client struct {
	config *Config

	mu        sync.Mutex
	sshClient *ssh.Client
}

// NewClient creates a client for the given configuration.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect implements Transport.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sshClient != nil {
		return nil
	}

	clientConfig, err := c.config.BuildClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing ssh connection")

	connCh := make(chan *ssh.Client, 1)
	errCh := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- client
	}()

	select {
	case <-ctx.Done():
		return &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case err := <-errCh:
		return &TransportError{Op: "connect", Err: err, IsTemporary: true}
	case client := <-connCh:
		c.sshClient = client
	}

	log.Info().Str("address", address).Str("user", c.config.User).Msg("ssh connected")
	return nil
}

// Close implements Transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sshClient == nil {
		return nil
	}
	err := c.sshClient.Close()
	c.sshClient = nil
	return err
}

// ExecuteCommand implements Transport.
func (c *Client) ExecuteCommand(ctx context.Context, cmd string) (string, string, error) {
	c.mu.Lock()
	client := c.sshClient
	c.mu.Unlock()
	if client == nil {
		return "", "", &TransportError{Op: "execute", Err: fmt.Errorf("not connected")}
	}

	session, err := client.NewSession()
	if err != nil {
		return "", "", &TransportError{Op: "execute", Err: fmt.Errorf("create session: %w", err), IsTemporary: true}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		runErr = ctx.Err()
	case runErr = <-done:
	}

	stdout := strings.TrimSpace(stdoutBuf.String())
	stderr := strings.TrimSpace(stderrBuf.String())

	log.Debug().
		Str("command", cmd).
		Dur("duration", time.Since(start)).
		Int("stdout_len", len(stdout)).
		Msg("remote command finished")

	if runErr != nil {
		return stdout, stderr, &TransportError{Op: "execute", Err: runErr}
	}
	return stdout, stderr, nil
}
