package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/proxforge/proxforge/pkg/runner"
)

// Client is the secrets-vault session a workflow holds for the duration of
// a run.
type Client interface {
	// Login authenticates the CLI if no session exists yet. It reports
	// whether a login was actually performed, so the caller knows whether
	// Logout is its responsibility.
	Login(ctx context.Context) (bool, error)

	// Unlock opens the vault and caches the session token for List.
	Unlock(ctx context.Context, password string) error

	// List fetches every item the session can read.
	List(ctx context.Context) ([]Secret, error)

	// Lock closes the vault, invalidating the session token.
	Lock(ctx context.Context) error

	// Logout ends the CLI session entirely.
	Logout(ctx context.Context) error
}

// CLI drives a Bitwarden-compatible vault CLI.
type CLI struct {
	// Binary is the CLI executable name. Defaults to "bw".
	Binary string

	runner  runner.Runner
	session string
	logger  zerolog.Logger
}

// NewCLI creates a vault client backed by the given runner.
func NewCLI(r runner.Runner) *CLI {
	return &CLI{
		Binary: "bw",
		runner: r,
		logger: log.With().Str("component", "vault").Logger(),
	}
}

// Login implements Client. Already being logged in is not an error.
func (c *CLI) Login(ctx context.Context) (bool, error) {
	if _, err := c.runner.Run(ctx, c.Binary, []string{"login", "--check"}, nil); err == nil {
		c.logger.Debug().Msg("vault session already exists")
		return false, nil
	}
	if _, err := c.runner.Run(ctx, c.Binary, []string{"login"}, nil); err != nil {
		return false, fmt.Errorf("vault login: %w", err)
	}
	return true, nil
}

// Unlock implements Client. The raw session token from the CLI is kept in
// memory only and passed to subsequent commands via the environment.
func (c *CLI) Unlock(ctx context.Context, password string) error {
	args := []string{"unlock", "--raw"}
	var env []string
	if password != "" {
		args = append(args, "--passwordenv", "PROXFORGE_VAULT_PASSWORD")
		env = append(env, "PROXFORGE_VAULT_PASSWORD="+password)
	}
	out, err := c.runner.Run(ctx, c.Binary, args, env)
	if err != nil {
		return fmt.Errorf("vault unlock: %w", err)
	}
	c.session = strings.TrimSpace(out)
	c.logger.Debug().Msg("vault unlocked")
	return nil
}

// List implements Client.
func (c *CLI) List(ctx context.Context) ([]Secret, error) {
	if c.session == "" {
		return nil, fmt.Errorf("vault is locked; call Unlock first")
	}
	out, err := c.runner.Run(ctx, c.Binary, []string{"list", "items"}, []string{"BW_SESSION=" + c.session})
	if err != nil {
		return nil, fmt.Errorf("vault list: %w", err)
	}

	var secrets []Secret
	if err := json.Unmarshal([]byte(out), &secrets); err != nil {
		return nil, fmt.Errorf("vault list: parse items: %w", err)
	}

	c.logger.Info().Int("count", len(secrets)).Msg("vault items fetched")
	return secrets, nil
}

// Lock implements Client.
func (c *CLI) Lock(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, c.Binary, []string{"lock"}, nil); err != nil {
		return fmt.Errorf("vault lock: %w", err)
	}
	c.session = ""
	return nil
}

// Logout implements Client.
func (c *CLI) Logout(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, c.Binary, []string{"logout"}, nil); err != nil {
		return fmt.Errorf("vault logout: %w", err)
	}
	c.session = ""
	return nil
}
