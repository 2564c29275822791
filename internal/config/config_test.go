package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "opsmesh.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
ops:
  host: 127.0.0.1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ops.Host != "127.0.0.1" {
		t.Errorf("ops.host = %q, want 127.0.0.1", cfg.Ops.Host)
	}
	if cfg.Ops.Port != 8081 {
		t.Errorf("ops.port = %d, want 8081 default", cfg.Ops.Port)
	}
	if cfg.Orchestrator.MaxCallsPerTurn != 5 {
		t.Errorf("max_calls_per_turn = %d, want 5 default", cfg.Orchestrator.MaxCallsPerTurn)
	}
	if !cfg.Orchestrator.ToolsEnabled {
		t.Error("tools_enabled should default to true")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
ops:
  host: 0.0.0.0
  bogus_field: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "ops:\n  host: a\n---\nops:\n  host: b\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for multi-document config")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("OPSMESH_TEST_HOST", "10.0.0.5")
	path := writeConfig(t, "ops:\n  host: \"${OPSMESH_TEST_HOST}\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ops.Host != "10.0.0.5" {
		t.Errorf("ops.host = %q, want 10.0.0.5", cfg.Ops.Host)
	}
}

func TestLoadValidatesRanges(t *testing.T) {
	path := writeConfig(t, `
ops:
  port: 99999
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *ConfigValidationError
	if !asConfigValidationError(err, &verr) {
		t.Fatalf("expected *ConfigValidationError, got %T: %v", err, err)
	}
}

func asConfigValidationError(err error, target **ConfigValidationError) bool {
	if e, ok := err.(*ConfigValidationError); ok {
		*target = e
		return true
	}
	return false
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("OPSMESH_DEFAULT_MODEL", "llama3.2")
	t.Setenv("OPSMESH_MAX_CALLS_PER_TURN", "9")
	path := writeConfig(t, `
orchestrator:
  default_model: llama3.1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Orchestrator.DefaultModel != "llama3.2" {
		t.Errorf("default_model = %q, want env override llama3.2", cfg.Orchestrator.DefaultModel)
	}
	if cfg.Orchestrator.MaxCallsPerTurn != 9 {
		t.Errorf("max_calls_per_turn = %d, want env override 9", cfg.Orchestrator.MaxCallsPerTurn)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ops.Port != 8081 {
		t.Errorf("ops.port = %d, want 8081", cfg.Ops.Port)
	}
}
