package ssh

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecuteCommand(t *testing.T) {
	server := newTestSSHServer(t)
	client := connectTestClient(t, server)
	ctx := context.Background()

	t.Run("successful command", func(t *testing.T) {
		stdout, stderr, err := client.ExecuteCommand(ctx, "echo test")
		if err != nil {
			t.Fatalf("command failed: %v", err)
		}
		if stdout != "test" {
			t.Errorf("expected stdout 'test', got '%s'", stdout)
		}
		if stderr != "" {
			t.Errorf("expected empty stderr, got '%s'", stderr)
		}
	})

	t.Run("command with stderr", func(t *testing.T) {
		stdout, stderr, err := client.ExecuteCommand(ctx, "echo error >&2")
		if err != nil {
			t.Fatalf("command failed: %v", err)
		}
		if stdout != "" {
			t.Errorf("expected empty stdout, got '%s'", stdout)
		}
		if stderr != "error" {
			t.Errorf("expected stderr 'error', got '%s'", stderr)
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		_, _, err := client.ExecuteCommand(ctx, "exit 3")
		if err == nil {
			t.Fatal("expected error for non-zero exit")
		}
		var te *TransportError
		if !errors.As(err, &te) || te.Op != "execute" {
			t.Errorf("expected execute TransportError, got %v", err)
		}
		if code, ok := ExitStatus(err); !ok || code != 3 {
			t.Errorf("ExitStatus() = %d, %v; want 3, true", code, ok)
		}
	})
}

func TestRun(t *testing.T) {
	server := newTestSSHServer(t)
	client := connectTestClient(t, server)
	ctx := context.Background()

	t.Run("streams output", func(t *testing.T) {
		var stdout bytes.Buffer
		result, err := client.Run(ctx, RunRequest{Command: "echo test", Stdout: &stdout})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.ExitCode != 0 {
			t.Errorf("exit code = %d", result.ExitCode)
		}
		if stdout.String() != "test\n" {
			t.Errorf("stdout = %q", stdout.String())
		}
	})

	t.Run("exit code is not an error", func(t *testing.T) {
		result, err := client.Run(ctx, RunRequest{Command: "exit 2"})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if result.ExitCode != 2 {
			t.Errorf("exit code = %d, want 2", result.ExitCode)
		}
	})

	t.Run("environment is prefixed", func(t *testing.T) {
		_, err := client.Run(ctx, RunRequest{
			Command: "bash /tmp/step.sh",
			Env:     map[string]string{"FORGE_DRY_RUN": "1", "A": "it's"},
		})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		want := `A='it'\''s' FORGE_DRY_RUN='1' bash /tmp/step.sh`
		if got := server.lastCommand(); got != want {
			t.Errorf("command = %q, want %q", got, want)
		}
	})

	t.Run("empty command", func(t *testing.T) {
		if _, err := client.Run(ctx, RunRequest{}); err == nil {
			t.Error("expected error for empty command")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		result, err := client.Run(ctx, RunRequest{Command: "sleep"})
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
		if result.ExitCode != -1 {
			t.Errorf("exit code = %d, want -1", result.ExitCode)
		}
	})
}

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name string
		req  RunRequest
		want string
	}{
		{"plain", RunRequest{Command: "bash s.sh"}, "bash s.sh"},
		{"sudo", RunRequest{Command: "bash s.sh", UseSudo: true}, "sudo bash s.sh"},
		{
			"sudo with env",
			RunRequest{Command: "bash s.sh", UseSudo: true, Env: map[string]string{"X": "1"}},
			"sudo env X='1' bash s.sh",
		},
		{
			"sudo password",
			RunRequest{Command: "id", UseSudo: true, SudoPassword: "p w"},
			"echo 'p w' | sudo -S id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildCommand(tt.req); got != tt.want {
				t.Errorf("buildCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}
