package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/devbush/vdraft/internal/config"
)

func TestMaskKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "*****"},
		{"sk-1234567890abcd", "sk-1*********abcd"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.in); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskSecrets_DoesNotTouchOriginal(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Corrector.APIKey = "sk-1234567890abcd"
	cfg.Corrector.APIKeys = []string{"sk-aaaaaaaaaaaa"}

	masked := maskSecrets(cfg)
	if masked.Corrector.APIKey == cfg.Corrector.APIKey || masked.Corrector.APIKeys[0] == cfg.Corrector.APIKeys[0] {
		t.Errorf("keys not masked: %+v", masked.Corrector)
	}
	if cfg.Corrector.APIKey != "sk-1234567890abcd" || cfg.Corrector.APIKeys[0] != "sk-aaaaaaaaaaaa" {
		t.Errorf("original config modified: %+v", cfg.Corrector)
	}
}

func TestWithoutEnvKey(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("DEEPSEEK_API_KEY", "from-env")

	cfg := config.DefaultConfig()
	cfg.Corrector.APIKey = "from-env"
	if got := withoutEnvKey(cfg).Corrector.APIKey; got != "" {
		t.Errorf("environment key would be saved: %q", got)
	}
	if cfg.Corrector.APIKey != "from-env" {
		t.Error("original config modified")
	}

	cfg.Corrector.APIKey = "from-file"
	if got := withoutEnvKey(cfg).Corrector.APIKey; got != "from-file" {
		t.Errorf("file key dropped: %q", got)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	clearKeyEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runConfigInit(cmd, path, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if err := runConfigInit(cmd, path, false); err == nil {
		t.Error("second init without --overwrite should fail")
	}
	if err := runConfigInit(cmd, path, true); err != nil {
		t.Errorf("init with overwrite: %v", err)
	}

	out.Reset()
	if err := runConfigValidate(cmd, path); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "Configuration valid") {
		t.Errorf("output = %q", out.String())
	}

	if err := os.WriteFile(path, []byte("defaults:\n  concurrency: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := runConfigValidate(cmd, path); err == nil {
		t.Error("invalid concurrency should fail validation")
	}
}
