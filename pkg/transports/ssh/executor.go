package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// ExecuteCommand runs a command on the remote host.
func (c *SSHClient) ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error) {
	var stdoutBuf, stderrBuf bytes.Buffer

	execErr := c.run(ctx, cmd, &stdoutBuf, &stderrBuf)

	stdout = strings.TrimSpace(stdoutBuf.String())
	stderr = strings.TrimSpace(stderrBuf.String())

	if execErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(execErr, &exitErr) {
			return stdout, stderr, &TransportError{
				Op:  "execute",
				Err: fmt.Errorf("command exited with code %d: %w", exitErr.ExitStatus(), exitErr),
			}
		}
		return stdout, stderr, execErr
	}

	return stdout, stderr, nil
}

// Run runs a command with streamed output.
func (c *SSHClient) Run(ctx context.Context, req RunRequest) (*ExecResult, error) {
	if req.Command == "" {
		return nil, &TransportError{Op: "run", Err: fmt.Errorf("command is required")}
	}

	stdout, stderr := req.Stdout, req.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	result := &ExecResult{StartedAt: time.Now()}
	err := c.run(ctx, buildCommand(req), stdout, stderr)
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		result.ExitCode = -1
		return result, err
	}
	return result, nil
}

// run executes cmd in a new session. On cancellation the remote process is
// signalled and the context error returned.
func (c *SSHClient) run(ctx context.Context, cmd string, stdout, stderr io.Writer) error {
	startTime := time.Now()

	log.Debug().Str("command", cmd).Msg("executing command")

	sshClient, err := c.getClient()
	if err != nil {
		return err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		execErr = &TransportError{Op: "execute", Err: ctx.Err()}
	case execErr = <-doneChan:
	}

	log.Debug().
		Str("command", cmd).
		Dur("duration", time.Since(startTime)).
		Err(execErr).
		Msg("command completed")

	var exitErr *ssh.ExitError
	if execErr != nil && !errors.As(execErr, &exitErr) {
		var te *TransportError
		if !errors.As(execErr, &te) {
			execErr = &TransportError{Op: "execute", Err: execErr, IsTemporary: true}
		}
	}
	return execErr
}

// buildCommand prefixes the command with its environment and sudo.
func buildCommand(req RunRequest) string {
	var b strings.Builder

	if req.UseSudo {
		if req.SudoPassword != "" {
			fmt.Fprintf(&b, "echo %s | sudo -S ", shellQuote(req.SudoPassword))
		} else {
			b.WriteString("sudo ")
		}
		if len(req.Env) > 0 {
			b.WriteString("env ")
		}
	}

	keys := make([]string, 0, len(req.Env))
	for k := range req.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s ", k, shellQuote(req.Env[k]))
	}

	b.WriteString(req.Command)
	return b.String()
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
