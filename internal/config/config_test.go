package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(llmAPIKeyEnv, "")
	t.Setenv(listenAddrEnv, "")

	cfg := Load()

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected default addr %q", cfg.Server.Addr)
	}
	if cfg.Scheduler.Tick() != time.Minute {
		t.Fatalf("unexpected default tick %v", cfg.Scheduler.Tick())
	}
	if cfg.Dispatch.Timeout() != 60*time.Second {
		t.Fatalf("unexpected default timeout %v", cfg.Dispatch.Timeout())
	}
	if cfg.Digest.MaxItems != 50 {
		t.Fatalf("unexpected default max items %d", cfg.Digest.MaxItems)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected default model %q", cfg.LLM.Model)
	}
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("unexpected default timezone %v", cfg.Scheduler.Location())
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
server:
  addr: ":9090"
scheduler:
  tickSeconds: 30
digest:
  maxItems: 10
  overlapThreshold: 0.4
llm:
  model: gpt-4o
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env-wins")
	t.Setenv(llmModelEnv, "gpt-4.1-mini")

	cfg := Load()

	if cfg.Server.Addr != ":9090" {
		t.Fatalf("file addr not applied, got %q", cfg.Server.Addr)
	}
	if cfg.Scheduler.TickSeconds != 30 {
		t.Fatalf("file tick not applied, got %d", cfg.Scheduler.TickSeconds)
	}
	if cfg.Digest.MaxItems != 10 || cfg.Digest.OverlapThreshold != 0.4 {
		t.Fatalf("file digest settings not applied: %+v", cfg.Digest)
	}
	if cfg.Database.DSN != "postgres://env-wins" {
		t.Fatalf("env dsn must win, got %q", cfg.Database.DSN)
	}
	if cfg.LLM.Model != "gpt-4.1-mini" {
		t.Fatalf("env model must override file, got %q", cfg.LLM.Model)
	}
}

func TestLoadBadTimezoneFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("scheduler:\n  timezone: Mars/Olympus\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)

	cfg := Load()
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("expected UTC fallback, got %v", cfg.Scheduler.Location())
	}
}
