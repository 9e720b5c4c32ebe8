package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
port: "8080"
logLevel: info
llmBaseURL: https://api.openai.com/v1
llmModel: gpt-4o-mini
jwksURL: https://auth.example.com/jwks
publicBaseURL: https://tarot.example
`

func TestLoadReadsYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.LLMModel != "gpt-4o-mini" {
		t.Fatalf("config not parsed: %+v", cfg)
	}
	if cfg.PublicBaseURL != "https://tarot.example" {
		t.Fatalf("publicBaseURL not parsed: %q", cfg.PublicBaseURL)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-from-env")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLMAPIKey != "sk-from-env" {
		t.Fatalf("env override missed: %q", cfg.LLMAPIKey)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Fatalf("env override missed: %q", cfg.DatabaseURL)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	if _, err := Load(writeConfig(t, "port: \"8080\"\n")); err == nil {
		t.Fatalf("expected incomplete config to fail")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}
