package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"unstack/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	writeFile(t, path, `
[translate]
jobs = 4
strict_pure_deferral = true

[trace]
level = "detail"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := config.Default()
	want.Translate.Jobs = 4
	want.Translate.StrictPureDeferral = true
	want.Trace.Level = "detail"
	want.Path = path
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[translate\n", "failed to parse TOML"},
		{"unknown key", "[translate]\nturbo = true\n", "unknown keys: translate.turbo"},
		{"empty cache dir", "[cache]\ndir = \"  \"\n", "[cache].dir must not be empty"},
		{"empty entry", "[run]\nentry = \"\"\n", "[run].entry must not be empty"},
		{"negative jobs", "[translate]\njobs = -1\n", "[translate].jobs"},
		{"bad level", "[trace]\nlevel = \"loud\"\n", "[trace].level"},
		{"bad mode", "[trace]\nmode = \"tape\"\n", "[trace].mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), config.FileName)
			writeFile(t, path, tt.content)
			_, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestFind_WalksUp(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, config.FileName)
	writeFile(t, path, "")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	got, ok, err := config.Find(nested)
	if err != nil || !ok {
		t.Fatalf("Find = %q, %v, %v", got, ok, err)
	}
	if got != path {
		t.Errorf("Find = %q, want %q", got, path)
	}
}

func TestLoadFrom_NoFile(t *testing.T) {
	cfg, err := config.LoadFrom(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	// a config file in a parent of the temp dir would make this flaky
	if cfg.Path != "" {
		t.Skipf("found unrelated %s", cfg.Path)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	cfg := config.Default()
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = "/tmp/unstack-cache"
	cfg.Run.StepLimit = 500
	if err := config.Write(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Path = path
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
