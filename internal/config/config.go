// Package config loads unstack.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"unstack/internal/trace"
)

// FileName is the configuration file looked up from the working directory
// upwards.
const FileName = "unstack.toml"

// Config is the decoded configuration. Zero fields of a loaded file keep
// their defaults.
type Config struct {
	Translate TranslateConfig `toml:"translate"`
	Cache     CacheConfig     `toml:"cache"`
	Trace     TraceConfig     `toml:"trace"`
	Run       RunConfig       `toml:"run"`

	// Path is the file the configuration was loaded from, if any.
	Path string `toml:"-"`
}

type TranslateConfig struct {
	StrictPureDeferral bool `toml:"strict_pure_deferral"`
	Optimize           bool `toml:"optimize"`
	Jobs               int  `toml:"jobs"`
	KeepGoing          bool `toml:"keep_going"`
	MaxDiagnostics     int  `toml:"max_diagnostics"`
}

type CacheConfig struct {
	Enabled bool `toml:"enabled"`
	// Dir overrides the default $XDG_CACHE_HOME/unstack location.
	Dir string `toml:"dir"`
}

type TraceConfig struct {
	Level  string `toml:"level"`
	Mode   string `toml:"mode"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

type RunConfig struct {
	Entry     string `toml:"entry"`
	StepLimit int    `toml:"step_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Translate: TranslateConfig{Optimize: true, MaxDiagnostics: 100},
		Cache:     CacheConfig{Enabled: false},
		Trace:     TraceConfig{Level: "off", Mode: "stream", Format: "text"},
		Run:       RunConfig{Entry: "main", StepLimit: 10_000_000},
	}
}

// Find walks up from startDir to locate unstack.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("cache", "dir") && strings.TrimSpace(cfg.Cache.Dir) == "" {
		return Config{}, fmt.Errorf("%s: [cache].dir must not be empty", path)
	}
	if meta.IsDefined("run", "entry") && strings.TrimSpace(cfg.Run.Entry) == "" {
		return Config{}, fmt.Errorf("%s: [run].entry must not be empty", path)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFrom finds and loads the nearest unstack.toml, falling back to the
// defaults when there is none.
func LoadFrom(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Translate.Jobs < 0 {
		errs = append(errs, fmt.Errorf("[translate].jobs must be >= 0, got %d", c.Translate.Jobs))
	}
	if c.Translate.MaxDiagnostics <= 0 {
		errs = append(errs, fmt.Errorf("[translate].max_diagnostics must be > 0, got %d", c.Translate.MaxDiagnostics))
	}
	if c.Run.StepLimit < 0 {
		errs = append(errs, fmt.Errorf("[run].step_limit must be >= 0, got %d", c.Run.StepLimit))
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		errs = append(errs, fmt.Errorf("[trace].level: %w", err))
	}
	if _, err := trace.ParseMode(c.Trace.Mode); err != nil {
		errs = append(errs, fmt.Errorf("[trace].mode: %w", err))
	}
	if _, err := trace.ParseFormat(c.Trace.Format); err != nil {
		errs = append(errs, fmt.Errorf("[trace].format: %w", err))
	}
	return errors.Join(errs...)
}

// Write encodes cfg to path.
func Write(path string, cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("%s: failed to encode TOML: %w", path, err)
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(path, buf.Bytes(), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
