package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"unstack/internal/config"
)

// skipConfigAnnotation marks commands that run on built-in defaults even
// when unstack.toml is present or broken.
const skipConfigAnnotation = "unstack/skip-config"

type settings struct {
	cfg     config.Config
	color   string
	quiet   bool
	timings bool

	ringSize  int
	heartbeat time.Duration
}

type settingsKey struct{}

func withSettings(ctx context.Context, s *settings) context.Context {
	return context.WithValue(ctx, settingsKey{}, s)
}

func settingsFrom(cmd *cobra.Command) *settings {
	if s, ok := cmd.Context().Value(settingsKey{}).(*settings); ok {
		return s
	}
	return &settings{cfg: config.Default(), color: "auto"}
}

// loadSettings reads unstack.toml and applies persistent flag overrides.
// Flags win over the file, the file wins over defaults.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	root := cmd.Root().PersistentFlags()
	s := &settings{cfg: config.Default()}

	if cmd.Annotations[skipConfigAnnotation] != "true" {
		path, err := root.GetString("config")
		if err != nil {
			return nil, err
		}
		if path != "" {
			s.cfg, err = config.Load(path)
		} else {
			s.cfg, err = config.LoadFrom(".")
		}
		if err != nil {
			return nil, err
		}
	}

	var err error
	if s.color, err = root.GetString("color"); err != nil {
		return nil, err
	}
	switch strings.ToLower(s.color) {
	case "auto", "on", "off":
	default:
		return nil, fmt.Errorf("invalid --color value %q (expected auto|on|off)", s.color)
	}
	if s.quiet, err = root.GetBool("quiet"); err != nil {
		return nil, err
	}
	if s.timings, err = root.GetBool("timings"); err != nil {
		return nil, err
	}
	if s.ringSize, err = root.GetInt("trace-ring-size"); err != nil {
		return nil, err
	}
	if s.heartbeat, err = root.GetDuration("trace-heartbeat"); err != nil {
		return nil, err
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"trace", &s.cfg.Trace.Output},
		{"trace-level", &s.cfg.Trace.Level},
		{"trace-mode", &s.cfg.Trace.Mode},
		{"trace-format", &s.cfg.Trace.Format},
	}
	for _, o := range overrides {
		if !root.Changed(o.flag) {
			continue
		}
		if *o.dst, err = root.GetString(o.flag); err != nil {
			return nil, err
		}
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func applyColor(mode string) {
	switch strings.ToLower(mode) {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	}
}
