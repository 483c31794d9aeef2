package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestConfigReadsFileAPIKeys(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	configDir := filepath.Join(home, ".taskgate")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("api_keys:\n  anthropic: file-ant\n  openai: file-openai\n  google: file-google\n  openrouter: file-or\nlocal_endpoint: http://gpu-box:11434\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("TASKGATE_LOCAL_ENDPOINT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "file-ant" || cfg.OpenAIAPIKey != "file-openai" ||
		cfg.GoogleAPIKey != "file-google" || cfg.OpenRouterKey != "file-or" {
		t.Fatalf("expected file API keys to be used, got %+v", cfg)
	}
	if cfg.LocalEndpoint != "http://gpu-box:11434" {
		t.Fatalf("expected file local endpoint, got %q", cfg.LocalEndpoint)
	}
}

func TestConfigEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	configDir := filepath.Join(home, ".taskgate")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("api_keys:\n  anthropic: file-ant\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "env-ant")
	t.Setenv("OPENAI_API_KEY", "env-openai")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "env-ant" {
		t.Fatalf("expected env key to win, got %q", cfg.AnthropicAPIKey)
	}
	if cfg.OpenAIAPIKey != "env-openai" {
		t.Fatalf("expected env key, got %q", cfg.OpenAIAPIKey)
	}
}

func TestConfigDefaultLocalEndpoint(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	t.Setenv("TASKGATE_LOCAL_ENDPOINT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LocalEndpoint != "http://localhost:11434" {
		t.Fatalf("expected default local endpoint, got %q", cfg.LocalEndpoint)
	}
	if cfg.Routing == nil {
		t.Fatalf("expected default routing config")
	}
}

func TestHasProvider(t *testing.T) {
	cfg := &Config{OpenAIAPIKey: "key"}
	if !cfg.HasProvider("openai") {
		t.Fatalf("expected openai to be configured")
	}
	for _, name := range []string{"anthropic", "google", "openrouter", "bogus"} {
		if cfg.HasProvider(name) {
			t.Fatalf("expected %s to be unconfigured", name)
		}
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
