package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forgearch/forge/pkg/transports/ssh"
)

// Executor runs processes on the target machine.
type Executor interface {
	// Exists reports whether a repository-relative script exists.
	Exists(script string) (bool, error)

	// RunScript runs a repository-relative script with the shell.
	RunScript(ctx context.Context, script string, env map[string]string) (exitCode int, err error)

	// RunCommand runs argv.
	RunCommand(ctx context.Context, argv []string, env map[string]string) (exitCode int, err error)
}

// LocalExecutor runs on this machine.
type LocalExecutor struct {
	// Root is the repository root on disk.
	Root string

	// Shell is the interpreter argv, e.g. ["bash"].
	Shell []string

	Stdout io.Writer
	Stderr io.Writer
}

var _ Executor = (*LocalExecutor)(nil)

// Exists implements Executor.
func (e *LocalExecutor) Exists(script string) (bool, error) {
	info, err := os.Stat(e.abs(script))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// RunScript implements Executor.
func (e *LocalExecutor) RunScript(ctx context.Context, script string, env map[string]string) (int, error) {
	argv := append(append([]string{}, e.Shell...), e.abs(script))
	return e.run(ctx, argv, env)
}

// RunCommand implements Executor.
func (e *LocalExecutor) RunCommand(ctx context.Context, argv []string, env map[string]string) (int, error) {
	return e.run(ctx, argv, env)
}

func (e *LocalExecutor) abs(script string) string {
	return filepath.Join(e.Root, filepath.FromSlash(script))
}

func (e *LocalExecutor) run(ctx context.Context, argv []string, env map[string]string) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("command is required")
	}

	// A started process always runs to exit; cancellation only stops the
	// steps after it.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), argv[0], argv[1:]...)
	cmd.Dir = e.Root
	cmd.Stdin = nil
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), envList(env)...)
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to execute %s: %w", argv[0], err)
	}
	return 0, nil
}

// RemoteExecutor uploads scripts from the local repository and runs them on
// a remote target.
type RemoteExecutor struct {
	// FS is the repository; scripts are read from it.
	FS fs.FS

	Transport ssh.Transport

	// Shell is the interpreter argv on the remote side.
	Shell []string

	// TempDir receives uploaded scripts. Defaults to /tmp.
	TempDir string

	Stdout io.Writer
	Stderr io.Writer

	Logger zerolog.Logger
}

var _ Executor = (*RemoteExecutor)(nil)

// Exists implements Executor.
func (e *RemoteExecutor) Exists(script string) (bool, error) {
	info, err := fs.Stat(e.FS, script)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// RunScript implements Executor. Once started, the upload and the run are
// not interrupted by ctx. The script is removed from the target afterwards.
func (e *RemoteExecutor) RunScript(ctx context.Context, script string, env map[string]string) (int, error) {
	ctx = context.WithoutCancel(ctx)
	src, err := e.FS.Open(script)
	if err != nil {
		return -1, fmt.Errorf("failed to open %s: %w", script, err)
	}
	defer src.Close()

	tmpDir := e.TempDir
	if tmpDir == "" {
		tmpDir = "/tmp"
	}
	remotePath := path.Join(tmpDir, fmt.Sprintf("forge-%s-%s", uuid.New().String(), path.Base(script)))

	if err := e.Transport.UploadFile(ctx, src, remotePath, 0o700); err != nil {
		return -1, fmt.Errorf("failed to upload %s: %w", script, err)
	}
	defer func() {
		if err := e.Transport.RemoveFile(ctx, remotePath); err != nil {
			e.Logger.Warn().Err(err).Str("path", remotePath).Msg("Failed to remove uploaded script")
		}
	}()

	argv := append(append([]string{}, e.Shell...), remotePath)
	return e.RunCommand(ctx, argv, env)
}

// RunCommand implements Executor. The remote command runs to exit even when
// ctx is cancelled.
func (e *RemoteExecutor) RunCommand(ctx context.Context, argv []string, env map[string]string) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("command is required")
	}
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = quoteArg(a)
	}

	res, err := e.Transport.Run(context.WithoutCancel(ctx), ssh.RunRequest{
		Command: strings.Join(quoted, " "),
		Env:     env,
		Stdout:  e.Stdout,
		Stderr:  e.Stderr,
	})
	if err != nil {
		return -1, err
	}
	return res.ExitCode, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// quoteArg quotes a for a POSIX shell unless it is made of safe characters.
func quoteArg(a string) string {
	if a != "" && strings.Trim(a, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./=+:,@%") == "" {
		return a
	}
	return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
}
