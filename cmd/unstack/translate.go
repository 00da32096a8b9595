package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"unstack/internal/declir"
	"unstack/internal/diag"
	"unstack/internal/lowir"
	"unstack/internal/pipeline"
)

var translateCmd = &cobra.Command{
	Use:   "translate [flags] <program>",
	Short: "Translate stack-machine functions into declarative code",
	Long: `Translate reads a program (.json, .msgpack or .mp), reconstructs every
function as declarative code, optimizes it and prints the result.`,
	Args: cobra.ExactArgs(1),
	RunE: translateExecution,
}

func init() {
	f := translateCmd.Flags()
	f.StringP("output", "o", "", "write the listing to this file instead of stdout")
	f.StringSlice("only", nil, "translate only the named functions")
	f.Int("jobs", 0, "number of parallel workers (0 = config or GOMAXPROCS)")
	f.Bool("keep-going", false, "report failing functions as diagnostics and continue")
	f.Bool("strict", false, "keep pure calls from moving across memory and global writes")
	f.Bool("no-optimize", false, "print the raw reconstruction")
	f.Bool("no-cache", false, "bypass the translation cache")
	f.Int("max-diagnostics", 0, "maximum number of diagnostics to keep (0 = config)")
	f.Bool("stats", false, "print optimizer statistics per function")
	f.String("ui", "auto", "progress UI (auto|on|off)")
}

func translateExecution(cmd *cobra.Command, args []string) error {
	s := settingsFrom(cmd)
	path := args[0]

	p, err := lowir.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	req, err := buildRequest(cmd, s, p)
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	showStats, err := cmd.Flags().GetBool("stats")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	req.Progress = &funcProgress
	var res *pipeline.Result
	if !s.quiet && shouldUseTUI(mode, outputPath == "") {
		res, err = runCompileWithUI(cmd.Context(), "translating "+filepath.Base(path), selectedNames(p, req.Only), req)
	} else {
		res, err = pipeline.Compile(cmd.Context(), req)
	}
	if res != nil {
		printDiagnostics(cmd.ErrOrStderr(), res.Bag)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputPath != "" {
		file, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outputPath, err)
		}
		defer file.Close()
		out = file
	}
	if err := writeListing(out, res, showStats); err != nil {
		return err
	}

	if !s.quiet {
		printSummary(cmd.ErrOrStderr(), res)
	}
	if s.timings {
		printStageTimings(cmd.ErrOrStderr(), &res.Timings)
		fmt.Fprint(cmd.ErrOrStderr(), res.Timer.Summary())
	}
	if res.Bag.HasErrors() {
		return res.Bag.Err()
	}
	return nil
}

// buildRequest merges config values with command flags.
func buildRequest(cmd *cobra.Command, s *settings, p *lowir.Program) (*pipeline.Request, error) {
	tc := s.cfg.Translate
	req := &pipeline.Request{
		Program:        p,
		Jobs:           tc.Jobs,
		KeepGoing:      tc.KeepGoing,
		MaxDiagnostics: tc.MaxDiagnostics,
		Strict:         tc.StrictPureDeferral,
		NoOptimize:     !tc.Optimize,
	}
	flags := cmd.Flags()
	var err error
	if flags.Changed("jobs") {
		if req.Jobs, err = flags.GetInt("jobs"); err != nil {
			return nil, err
		}
		if req.Jobs < 0 {
			return nil, fmt.Errorf("--jobs must be >= 0")
		}
	}
	if flags.Changed("max-diagnostics") {
		if req.MaxDiagnostics, err = flags.GetInt("max-diagnostics"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("keep-going") {
		if req.KeepGoing, err = flags.GetBool("keep-going"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("strict") {
		if req.Strict, err = flags.GetBool("strict"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("no-optimize") {
		if req.NoOptimize, err = flags.GetBool("no-optimize"); err != nil {
			return nil, err
		}
	}
	if req.Only, err = flags.GetStringSlice("only"); err != nil {
		return nil, err
	}

	noCache, err := flags.GetBool("no-cache")
	if err != nil {
		return nil, err
	}
	if s.cfg.Cache.Enabled && !noCache {
		if req.Cache, err = openCache(s); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func openCache(s *settings) (*pipeline.DiskCache, error) {
	if s.cfg.Cache.Dir != "" {
		return pipeline.NewDiskCache(s.cfg.Cache.Dir)
	}
	return pipeline.OpenDiskCache("unstack")
}

func selectedNames(p *lowir.Program, only []string) []string {
	if len(only) > 0 {
		return only
	}
	names := make([]string, len(p.Funcs))
	for i, f := range p.Funcs {
		names[i] = f.Name
	}
	return names
}

func writeListing(w io.Writer, res *pipeline.Result, stats bool) error {
	bw := bufio.NewWriter(w)
	first := true
	for _, fr := range res.Funcs {
		if fr == nil {
			continue
		}
		if !first {
			fmt.Fprintln(bw)
		}
		first = false
		if stats {
			st := fr.Stats
			fmt.Fprintf(bw, "// rounds=%d dead=%d fused=%d inlined=%d folded=%d\n",
				st.Rounds, st.Dead, st.Fused, st.Inlined, st.Folded)
		}
		if err := declir.Dump(bw, fr.Func); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func printDiagnostics(w io.Writer, bag *diag.Bag) {
	if bag == nil {
		return
	}
	for _, d := range bag.Items() {
		sev := color.New(color.FgYellow, color.Bold)
		if d.Severity == diag.SevError {
			sev = color.New(color.FgRed, color.Bold)
		}
		fmt.Fprintf(w, "%s %s %s: %s\n", sev.Sprint(d.Severity), d.Code.ID(), d.At, d.Message)
		for _, n := range d.Notes {
			fmt.Fprintf(w, "  note: %s: %s\n", n.At, n.Msg)
		}
	}
}

func printSummary(w io.Writer, res *pipeline.Result) {
	var translated, cached, failed int
	for _, fr := range res.Funcs {
		switch {
		case fr == nil:
			failed++
		case fr.Cached:
			cached++
			translated++
		default:
			translated++
		}
	}
	ok := color.New(color.FgGreen, color.Bold)
	line := fmt.Sprintf("%s %d functions", ok.Sprint("translated"), translated)
	if cached > 0 {
		line += fmt.Sprintf(", %d cached", cached)
	}
	if failed > 0 {
		line += ", " + color.New(color.FgRed, color.Bold).Sprintf("%d failed", failed)
	}
	fmt.Fprintln(w, line)
}
