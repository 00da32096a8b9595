package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"unstack/internal/lowir"
	"unstack/internal/purity"
)

var purityCmd = &cobra.Command{
	Use:   "purity [flags] <program>",
	Short: "Classify functions as pure or impure",
	Args:  cobra.ExactArgs(1),
	RunE:  purityExecution,
}

func init() {
	purityCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type purityEntry struct {
	Func   string `json:"func"`
	Pure   bool   `json:"pure"`
	Reason string `json:"reason,omitempty"`
}

func purityExecution(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format = strings.ToLower(format)
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	p, err := lowir.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if err := lowir.Validate(p); err != nil {
		return err
	}
	res := purity.Analyze(cmd.Context(), p)

	entries := make([]purityEntry, len(p.Funcs))
	for i, f := range p.Funcs {
		entries[i] = purityEntry{Func: f.Name, Pure: res.Pure[f.Name], Reason: res.Reasons[f.Name]}
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	pure := color.New(color.FgGreen)
	impure := color.New(color.FgRed)
	for _, e := range entries {
		if e.Pure {
			fmt.Fprintf(out, "%s %s\n", pure.Sprint("pure  "), e.Func)
			continue
		}
		fmt.Fprintf(out, "%s %s: %s\n", impure.Sprint("impure"), e.Func, e.Reason)
	}
	return nil
}
