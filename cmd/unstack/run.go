package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"unstack/internal/declir"
	"unstack/internal/interp"
	"unstack/internal/lowir"
	"unstack/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <program> [-- args...]",
	Short: "Execute a program in stack form, declarative form or both",
	Long: `Run executes the entry function of a program. In "both" mode the program
runs once as stack code and once as reconstructed code, and the results,
import calls, globals and memory must agree.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExecution,
}

func init() {
	f := runCmd.Flags()
	f.String("entry", "", "function to call (default: config or main)")
	f.String("mode", "stack", "execution form (stack|decl|both)")
	f.Int("step-limit", 0, "instruction budget (0 = config)")
	f.String("record", "", "write import calls as NDJSON to this file")
	f.Bool("strict", false, "translate with strict pure-call deferral")
	f.Bool("no-optimize", false, "run the raw reconstruction")
}

type runOutcome struct {
	results []lowir.Value
	err     error
	calls   []interp.HostCall
	globals []lowir.Value
	memory  []byte
	steps   int
}

func runExecution(cmd *cobra.Command, args []string) error {
	s := settingsFrom(cmd)
	flags := cmd.Flags()

	entry, err := flags.GetString("entry")
	if err != nil {
		return err
	}
	if entry == "" {
		entry = s.cfg.Run.Entry
	}
	modeValue, err := flags.GetString("mode")
	if err != nil {
		return err
	}
	mode := strings.ToLower(modeValue)
	if mode != "stack" && mode != "decl" && mode != "both" {
		return fmt.Errorf("invalid --mode value %q (expected stack|decl|both)", modeValue)
	}
	stepLimit := s.cfg.Run.StepLimit
	if flags.Changed("step-limit") {
		if stepLimit, err = flags.GetInt("step-limit"); err != nil {
			return err
		}
	}
	recordPath, err := flags.GetString("record")
	if err != nil {
		return err
	}

	p, err := lowir.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	fn := p.Func(entry)
	if fn == nil {
		return fmt.Errorf("no function named %q", entry)
	}
	values, err := parseArgs(fn.Sig().Params, args[1:])
	if err != nil {
		return err
	}

	var record io.Writer = io.Discard
	if recordPath != "" {
		file, err := os.Create(recordPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", recordPath, err)
		}
		defer file.Close()
		record = file
	}

	ctx := cmd.Context()
	var stack, decl *runOutcome
	if mode != "decl" {
		stack = execute(ctx, p, nil, entry, values, stepLimit, record)
		record = io.Discard
	}
	if mode != "stack" {
		funcs, err := translateForRun(cmd, s, p)
		if err != nil {
			return err
		}
		decl = execute(ctx, p, funcs, entry, values, stepLimit, record)
	}

	out := cmd.OutOrStdout()
	switch mode {
	case "stack":
		return report(cmd, out, stack)
	case "decl":
		return report(cmd, out, decl)
	}
	if err := compareOutcomes(stack, decl); err != nil {
		return err
	}
	if err := report(cmd, out, stack); err != nil {
		return err
	}
	if !s.quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s stack and declarative runs agree (%d and %d steps)\n",
			color.New(color.FgGreen, color.Bold).Sprint("ok"), stack.steps, decl.steps)
	}
	return nil
}

func translateForRun(cmd *cobra.Command, s *settings, p *lowir.Program) ([]*declir.Func, error) {
	req := &pipeline.Request{
		Program:    p,
		Jobs:       s.cfg.Translate.Jobs,
		Strict:     s.cfg.Translate.StrictPureDeferral,
		NoOptimize: !s.cfg.Translate.Optimize,
	}
	var err error
	if cmd.Flags().Changed("strict") {
		if req.Strict, err = cmd.Flags().GetBool("strict"); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("no-optimize") {
		if req.NoOptimize, err = cmd.Flags().GetBool("no-optimize"); err != nil {
			return nil, err
		}
	}
	if s.cfg.Cache.Enabled {
		if req.Cache, err = openCache(s); err != nil {
			return nil, err
		}
	}
	res, err := pipeline.Compile(cmd.Context(), req)
	if err != nil {
		return nil, err
	}
	return res.Translated(), nil
}

func execute(ctx context.Context, p *lowir.Program, decl []*declir.Func, entry string, args []lowir.Value, stepLimit int, record io.Writer) *runOutcome {
	rec := interp.NewRecorder(interp.ZeroHost{}, record)
	opts := []interp.Option{interp.WithHost(rec), interp.WithDecl(decl...)}
	if stepLimit > 0 {
		opts = append(opts, interp.WithStepLimit(stepLimit))
	}
	m := interp.New(p, opts...)
	results, err := m.Call(ctx, entry, args...)
	if err == nil {
		err = rec.Err()
	}
	o := &runOutcome{results: results, err: err, calls: rec.Calls(), memory: m.Memory(), steps: m.Steps()}
	for _, g := range p.Globals {
		v, _ := m.Global(g.Name)
		o.globals = append(o.globals, v)
	}
	return o
}

func report(cmd *cobra.Command, out io.Writer, o *runOutcome) error {
	if o.err != nil {
		var trap *interp.Trap
		if errors.As(o.err, &trap) {
			fmt.Fprint(cmd.ErrOrStderr(), color.New(color.FgRed).Sprint(trap.Format()))
		}
		return o.err
	}
	parts := make([]string, len(o.results))
	for i, v := range o.results {
		parts[i] = v.String()
	}
	_, err := fmt.Fprintln(out, strings.Join(parts, " "))
	return err
}

// compareOutcomes reports the first observable difference between two runs.
func compareOutcomes(stack, decl *runOutcome) error {
	trapCode := func(err error) interp.TrapCode {
		var trap *interp.Trap
		if errors.As(err, &trap) {
			return trap.Code
		}
		return 0
	}
	switch {
	case (stack.err == nil) != (decl.err == nil):
		return fmt.Errorf("mismatch: stack run error %v, declarative run error %v", stack.err, decl.err)
	case trapCode(stack.err) != trapCode(decl.err):
		return fmt.Errorf("mismatch: stack run trapped with %s, declarative run with %s", trapCode(stack.err), trapCode(decl.err))
	case !slices.EqualFunc(stack.results, decl.results, lowir.Value.Equal):
		return fmt.Errorf("mismatch: results %v vs %v", stack.results, decl.results)
	case !slices.EqualFunc(stack.globals, decl.globals, lowir.Value.Equal):
		return fmt.Errorf("mismatch: globals %v vs %v", stack.globals, decl.globals)
	case !bytes.Equal(stack.memory, decl.memory):
		return fmt.Errorf("mismatch: memory contents differ")
	case !slices.EqualFunc(stack.calls, decl.calls, sameCall):
		return fmt.Errorf("mismatch: import calls differ (%d vs %d)", len(stack.calls), len(decl.calls))
	}
	return nil
}

func sameCall(a, b interp.HostCall) bool {
	return a.Name == b.Name &&
		slices.EqualFunc(a.Args, b.Args, lowir.Value.Equal) &&
		slices.EqualFunc(a.Results, b.Results, lowir.Value.Equal)
}

// parseArgs converts command-line words to values of the entry parameter
// types. Integers accept any base strconv understands.
func parseArgs(params []lowir.Type, words []string) ([]lowir.Value, error) {
	if len(words) != len(params) {
		return nil, fmt.Errorf("entry takes %d arguments, got %d", len(params), len(words))
	}
	out := make([]lowir.Value, len(words))
	for i, w := range words {
		v, err := parseValue(params[i], w)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseValue(t lowir.Type, s string) (lowir.Value, error) {
	switch t {
	case lowir.I32:
		n, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			// accept unsigned spellings such as 0xffffffff
			u, uerr := strconv.ParseUint(s, 0, 32)
			if uerr != nil {
				return lowir.Value{}, err
			}
			return lowir.Value{Type: lowir.I32, Bits: u}, nil
		}
		return lowir.I32Value(int32(n)), nil
	case lowir.I64:
		n, err := strconv.ParseInt(strings.TrimSuffix(s, "L"), 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(strings.TrimSuffix(s, "L"), 0, 64)
			if uerr != nil {
				return lowir.Value{}, err
			}
			return lowir.Value{Type: lowir.I64, Bits: u}, nil
		}
		return lowir.I64Value(n), nil
	case lowir.F32:
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "f"), 32)
		if err != nil {
			return lowir.Value{}, err
		}
		return lowir.F32Value(float32(f)), nil
	case lowir.F64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return lowir.Value{}, err
		}
		return lowir.F64Value(f), nil
	default:
		return lowir.Value{}, fmt.Errorf("unsupported parameter type %s", t)
	}
}
