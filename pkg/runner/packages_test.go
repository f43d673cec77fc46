package runner

import (
	"errors"
	"strings"
	"testing"
)

func TestInstaller_Command(t *testing.T) {
	in, err := NewInstaller(map[string]string{
		"Arch":   "pacman -S --noconfirm --needed {{package}}",
		"debian": "apt-get install -y",
		"custom": `sh -c 'install-pkg "{{package}}"'`,
	})
	if err != nil {
		t.Fatalf("NewInstaller() error = %v", err)
	}

	tests := []struct {
		platform string
		want     string
	}{
		{"arch", "pacman -S --noconfirm --needed git"},
		{"ARCH", "pacman -S --noconfirm --needed git"},
		{"debian", "apt-get install -y git"},
		{"custom", `sh -c install-pkg "git"`},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			argv, err := in.Command(tt.platform, "git")
			if err != nil {
				t.Fatalf("Command() error = %v", err)
			}
			if got := strings.Join(argv, " "); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := in.Command("gentoo", "git"); !errors.Is(err, ErrNoPackageManager) {
		t.Errorf("error = %v, want ErrNoPackageManager", err)
	}

	if got := strings.Join(in.Platforms(), ","); got != "arch,custom,debian" {
		t.Errorf("Platforms() = %q", got)
	}
}

func TestNewInstaller_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", `pacman "unterminated`} {
		if _, err := NewInstaller(map[string]string{"arch": raw}); err == nil {
			t.Errorf("NewInstaller(%q) expected error", raw)
		}
	}
}
