package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	for _, name := range []string{"SERVER_PORT", "LLM_PROVIDER", "LLM_TIMEOUT", "PHASE_THRESHOLD_ANALYSIS", "CODEGEN_MIN_MATURITY", "AUTO_MIGRATE"} {
		t.Setenv(name, "")
	}

	if got := ServerPort(); got != 8080 {
		t.Errorf("ServerPort() = %d, want 8080", got)
	}
	if got := LLMProvider(); got != "anthropic" {
		t.Errorf("LLMProvider() = %q, want anthropic", got)
	}
	if got := LLMTimeout(); got != 60*time.Second {
		t.Errorf("LLMTimeout() = %v, want 60s", got)
	}
	if got := PhaseThreshold("analysis"); got != 60 {
		t.Errorf("PhaseThreshold(analysis) = %v, want 60", got)
	}
	if got := CodegenMinMaturity(); got != 100 {
		t.Errorf("CodegenMinMaturity() = %v, want 100", got)
	}
	if !AutoMigrate() {
		t.Error("AutoMigrate() should default to true")
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Cerebras")
	t.Setenv("CEREBRAS_API_KEY", "csk-test")
	t.Setenv("LLM_TIMEOUT", "15")
	t.Setenv("PHASE_THRESHOLD_DESIGN", "75")
	t.Setenv("PHASE_THRESHOLD_IMPLEMENTATION", "250")
	t.Setenv("DOMAIN_WATCH", "true")

	if got := LLMAPIKey(); got != "csk-test" {
		t.Errorf("LLMAPIKey() = %q, want csk-test", got)
	}
	if got := LLMTimeout(); got != 15*time.Second {
		t.Errorf("LLMTimeout() = %v, want 15s", got)
	}
	if got := PhaseThreshold("design"); got != 75 {
		t.Errorf("PhaseThreshold(design) = %v, want 75", got)
	}
	if got := PhaseThreshold("implementation"); got != 60 {
		t.Errorf("out of range threshold should fall back to 60, got %v", got)
	}
	if !DomainWatch() {
		t.Error("DomainWatch() should be true")
	}
}

func TestLoad_ReadsEnvFileAndSecret(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("DOMAINS_PATH=/srv/domains\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(envFile+".secret", []byte("ANTHROPIC_API_KEY=sk-secret\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SPECLENS_ENV", envFile)
	t.Setenv("DOMAINS_PATH", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	os.Unsetenv("DOMAINS_PATH")
	os.Unsetenv("ANTHROPIC_API_KEY")

	if err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := DomainsPath(); got != "/srv/domains" {
		t.Errorf("DomainsPath() = %q, want /srv/domains", got)
	}
	if got := AnthropicAPIKey(); got != "sk-secret" {
		t.Errorf("AnthropicAPIKey() = %q, want sk-secret", got)
	}
}
