package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runner executes a command and returns its standard output.
type Runner interface {
	// Run executes name with args, appending env ("KEY=value" entries) to
	// the inherited environment. It returns captured stdout; a non-zero
	// exit surfaces as an *ExitError.
	Run(ctx context.Context, name string, args []string, env []string) (string, error)
}

// ExitError reports a subprocess that exited non-zero.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Cmd, e.Code, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Cmd, e.Code)
}

// ExecRunner runs commands via os/exec, streaming output into the log.
type ExecRunner struct {
	// Dir is the working directory for every command. Empty means the
	// process's own working directory.
	Dir string

	// Quiet suppresses per-line output streaming; stdout is still captured.
	Quiet bool

	logger zerolog.Logger
}

// NewExecRunner creates a runner with dir as the working directory.
func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{
		Dir:    dir,
		logger: log.With().Str("component", "runner").Logger(),
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}

	logger := r.logger.With().Str("cmd", name).Logger()
	logger.Debug().Strs("args", args).Str("dir", r.Dir).Msg("executing")

	var stdout, stderr bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%s: stdout pipe: %w", name, err)
	}
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", name, err)
	}

	// Stream stdout line by line; external tools narrate their progress
	// there and waiting for exit to see it makes long applies opaque.
	scanner := bufio.NewScanner(io.TeeReader(stdoutPipe, &stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !r.Quiet {
			logger.Info().Msg(scanner.Text())
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		// A line past the buffer cap stops the scanner mid stream. Keep
		// draining so the tool never blocks on a full pipe and the capture
		// stays complete.
		logger.Warn().Err(scanErr).Msg("stdout streaming interrupted")
		_, _ = io.Copy(&stdout, stdoutPipe)
	}

	err = cmd.Wait()
	duration := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Error().
				Int("code", exitErr.ExitCode()).
				Dur("duration", duration).
				Msg("command failed")
			return stdout.String(), &ExitError{
				Cmd:    name,
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.String(), fmt.Errorf("run %s: %w", name, err)
	}

	logger.Debug().Dur("duration", duration).Msg("command completed")
	return stdout.String(), nil
}
