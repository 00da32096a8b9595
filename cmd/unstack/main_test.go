package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"unstack/internal/config"
	"unstack/internal/lowir"
	"unstack/internal/testkit"
)

// runCLI runs the root command with a fresh config file and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, config.FileName)
	cfg := config.Default()
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	if err := config.Write(cfgPath, cfg); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--config", cfgPath, "--color", "off", "--quiet"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeProgram(t *testing.T, p *lowir.Program, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := lowir.WriteFile(path, p); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_BothModesAgree(t *testing.T) {
	for _, s := range testkit.Samples() {
		if s.Traps {
			continue
		}
		t.Run(s.Name, func(t *testing.T) {
			path := writeProgram(t, s.Program, "prog.mp")
			args := []string{"run", "--mode", "both", "--entry", s.Entry, path, "--"}
			for _, v := range s.Args {
				args = append(args, v.String())
			}
			out, err := runCLI(t, args...)
			if err != nil {
				t.Fatal(err)
			}
			want := make([]string, len(s.Want))
			for i, v := range s.Want {
				want[i] = v.String()
			}
			if got := strings.TrimSpace(out); got != strings.Join(want, " ") {
				t.Errorf("output = %q, want %q", got, strings.Join(want, " "))
			}
		})
	}
}

func TestRun_TrapIsAnError(t *testing.T) {
	for _, s := range testkit.Samples() {
		if !s.Traps {
			continue
		}
		path := writeProgram(t, s.Program, "prog.json")
		args := []string{"run", "--mode", "stack", "--entry", s.Entry, path, "--"}
		for _, v := range s.Args {
			args = append(args, v.String())
		}
		if _, err := runCLI(t, args...); err == nil {
			t.Errorf("%s: expected a trap", s.Name)
		}
	}
}

func TestTranslate_WritesListing(t *testing.T) {
	path := writeProgram(t, testkit.PureCallProgram(), "prog.json")
	outPath := filepath.Join(t.TempDir(), "out.txt")
	if _, err := runCLI(t, "translate", "--ui", "off", "-o", outPath, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, fn := range testkit.PureCallProgram().Funcs {
		if !strings.Contains(string(data), fn.Name) {
			t.Errorf("listing does not mention %s:\n%s", fn.Name, data)
		}
	}
}

func TestPurity_JSON(t *testing.T) {
	path := writeProgram(t, testkit.PureCallProgram(), "prog.json")
	out, err := runCLI(t, "purity", "--format", "json", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"func": "sq"`) || !strings.Contains(out, `"pure": true`) {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		t    lowir.Type
		in   string
		want lowir.Value
	}{
		{lowir.I32, "-7", lowir.I32Value(-7)},
		{lowir.I32, "0xffffffff", lowir.I32Value(-1)},
		{lowir.I64, "12L", lowir.I64Value(12)},
		{lowir.F32, "1.5f", lowir.F32Value(1.5)},
		{lowir.F64, "2.25", lowir.F64Value(2.25)},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.t, tt.in)
		if err != nil {
			t.Fatalf("parseValue(%s, %q): %v", tt.t, tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseValue(%s, %q) = %v, want %v", tt.t, tt.in, got, tt.want)
		}
	}
	if _, err := parseValue(lowir.I32, "nope"); err == nil {
		t.Error("expected an error for a non-number")
	}
	if _, err := parseArgs([]lowir.Type{lowir.I32}, nil); err == nil {
		t.Error("expected an arity error")
	}
}

func TestReadUIMode(t *testing.T) {
	if m, err := readUIMode(" ON "); err != nil || m != uiModeOn {
		t.Errorf("readUIMode = %q, %v", m, err)
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Error("expected an error")
	}
	if m, err := readUIMode("false"); err != nil || m != uiModeOff {
		t.Errorf("readUIMode(false) = %q, %v", m, err)
	}
	if shouldUseTUI(uiModeAuto, true) {
		t.Error("auto mode must stay off when the listing goes to stdout")
	}
	if !shouldUseTUI(uiModeOn, true) || shouldUseTUI(uiModeOff, false) {
		t.Error("explicit modes must win over auto detection")
	}
	t.Setenv("TERM", "dumb")
	if shouldUseTUI(uiModeAuto, false) {
		t.Error("auto mode must stay off on a dumb terminal")
	}
}
