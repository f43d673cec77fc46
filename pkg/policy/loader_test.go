package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testRego = `package test.policy

# Test policy for validation
# spanning two lines

import rego.v1

deny contains "gaming is not allowed" if {
	input.config.pillars.gaming
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "no-gaming.rego")
	writeFile(t, policyFile, testRego)

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "no-gaming" {
		t.Errorf("Expected name 'no-gaming', got '%s'", policy.Name)
	}
	if policy.Rego != testRego {
		t.Error("Rego content doesn't match")
	}
	if policy.Description != "Test policy for validation spanning two lines" {
		t.Errorf("Description = %q", policy.Description)
	}
	if !policy.Enabled || policy.Builtin {
		t.Errorf("Enabled = %v, Builtin = %v", policy.Enabled, policy.Builtin)
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Severity = %s", policy.Severity)
	}
	if policy.Source != policyFile {
		t.Errorf("Source = %q", policy.Source)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "strict.json")
	writeFile(t, policyFile, `{"description": "strict", "severity": "error", "enabled": true, "builtin": true, "rego": "package strict\n"}`)

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "strict" {
		t.Errorf("Name = %q, want file name", policy.Name)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Severity = %s", policy.Severity)
	}
	if policy.Builtin {
		t.Error("loaded policy marked builtin")
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	invalid := filepath.Join(dir, "invalid.json")
	writeFile(t, invalid, "{not json")
	if _, err := loader.loadFromFile(invalid); err == nil {
		t.Error("expected error for invalid JSON")
	}

	other := filepath.Join(dir, "notes.txt")
	writeFile(t, other, "hello")
	if _, err := loader.loadFromFile(other); err == nil {
		t.Error("expected error for unsupported file type")
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "a.rego"), testRego)
	writeFile(t, filepath.Join(dir, "team", "b.rego"), testRego)
	writeFile(t, filepath.Join(dir, "team", "broken.json"), "{")
	writeFile(t, filepath.Join(dir, "README.md"), "# policies")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("loaded %d policies, want 2", len(policies))
	}
}

func TestClearCache(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "p.rego")
	writeFile(t, policyFile, testRego)

	if _, err := loader.loadFromFile(policyFile); err != nil {
		t.Fatal(err)
	}
	writeFile(t, policyFile, "package changed\n")

	cached, _ := loader.loadFromFile(policyFile)
	if cached.Rego != testRego {
		t.Error("expected cached policy")
	}

	loader.ClearCache()
	fresh, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Rego != "package changed\n" {
		t.Error("expected policy reloaded after ClearCache")
	}
}

func TestEngineLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "no-gaming.rego"), testRego)

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	warnings, err := eng.Advise(context.Background(), mustProfile(t, "ws", "pillars:\n  gaming: all\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 || warnings[0] != "no-gaming: gaming is not allowed" {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), testRego)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader := NewLoader(zerolog.Nop())
	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		reloaded <- policies
		return nil
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeFile(t, filepath.Join(dir, "b.rego"), testRego)

	select {
	case policies := <-reloaded:
		if len(policies) != 2 {
			t.Errorf("reloaded %d policies, want 2", len(policies))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatchPaths_NothingToWatch(t *testing.T) {
	err := WatchPaths(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, IsPolicyFile, func([]string) {}, zerolog.Nop())
	if err == nil {
		t.Error("expected error when no path exists")
	}
}
