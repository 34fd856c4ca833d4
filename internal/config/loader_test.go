package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "configs"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "configs", name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("STUDIO_TEST_HOST", "db.internal")

	cases := map[string]string{
		"${STUDIO_TEST_HOST}":           "db.internal",
		"${STUDIO_TEST_HOST:localhost}": "db.internal",
		"${STUDIO_TEST_MISSING:8080}":   "8080",
		"${STUDIO_TEST_MISSING:}":       "",
		"${STUDIO_TEST_MISSING}":        "${STUDIO_TEST_MISSING}",
		"plain":                         "plain",
	}
	for in, want := range cases {
		if got := expandEnv(in); got != want {
			t.Errorf("expandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad_MergesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
app:
  name: studio
upstream:
  base_url: ${STUDIO_TEST_UPSTREAM:https://fallback.example.com}
studio:
  planning_model: flash
  temperature: 0.9
`)
	writeConfig(t, dir, "config.staging.yaml", `
studio:
  planning_model: pro
`)
	t.Chdir(dir)
	t.Setenv("APP_ENV", "staging")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Name != "studio" {
		t.Errorf("app.name = %q", cfg.App.Name)
	}
	if cfg.Upstream.BaseURL != "https://fallback.example.com" {
		t.Errorf("upstream.base_url = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Studio.PlanningModel != "pro" {
		t.Errorf("studio.planning_model = %q, want env override", cfg.Studio.PlanningModel)
	}
	if cfg.Studio.Temperature != 0.9 {
		t.Errorf("studio.temperature = %v", cfg.Studio.Temperature)
	}
	if cfg.Studio.TopK != 512 {
		t.Errorf("studio.top_k default = %d", cfg.Studio.TopK)
	}
	if cfg.Server.HTTP.WriteTimeout != 0 || cfg.Upstream.Timeout != 0 || cfg.Studio.OpTimeout != 0 {
		t.Errorf("client-side timeouts should default to disabled: write=%v upstream=%v op=%v",
			cfg.Server.HTTP.WriteTimeout, cfg.Upstream.Timeout, cfg.Studio.OpTimeout)
	}
}

func TestLoad_MissingBaseFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load(); err == nil {
		t.Fatal("expected error when configs/config.yaml is absent")
	}
}
