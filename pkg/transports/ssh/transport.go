// Package ssh provides the SSH transport used to provision a remote target.
package ssh

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/crypto/ssh"
)

// Transport defines the remote operations forge needs: running commands and
// scripts, and moving step scripts onto the target.
type Transport interface {
	// Connect establishes an SSH connection to the remote host.
	// Returns an error if connection fails or authentication is rejected.
	Connect(ctx context.Context) error

	// Disconnect closes the SSH connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// HealthCheck verifies the connection is still alive and responsive.
	HealthCheck(ctx context.Context) error

	// ExecuteCommand runs a command on the remote host and captures its
	// output. A non-zero exit is returned as a *TransportError.
	ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// Run runs a command with its output streamed to the request's writers.
	// A non-zero exit is reported in the result, not as an error.
	Run(ctx context.Context, req RunRequest) (*ExecResult, error)

	// UploadFile writes src to remotePath via SFTP with the given mode.
	UploadFile(ctx context.Context, src io.Reader, remotePath string, mode uint32) error

	// RemoveFile deletes a remote file. A missing file is not an error.
	RemoveFile(ctx context.Context, remotePath string) error

	// GetConnectionInfo returns information about the current connection.
	GetConnectionInfo() ConnectionInfo
}

// RunRequest describes a streamed command execution.
type RunRequest struct {
	// Command is run by the remote user's login shell.
	Command string

	// Env is exported to the command. Values are shell-quoted.
	Env map[string]string

	// Stdout and Stderr receive the command's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// UseSudo runs the command through sudo.
	UseSudo bool

	// SudoPassword is fed to sudo -S when set.
	SudoPassword string
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	Host         string
	Port         int
	User         string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// ExecResult represents the result of a command execution.
type ExecResult struct {
	// ExitCode is the command's exit code, or -1 when it was interrupted
	ExitCode int

	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// ExitStatus extracts the remote exit status from an error returned by
// ExecuteCommand. ok is false when err does not carry one.
func ExitStatus(err error) (code int, ok bool) {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), true
	}
	return 0, false
}
