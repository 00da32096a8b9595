package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"unstack/internal/lowir"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] <program>",
	Short: "Print a program in stack form or convert between encodings",
	Long: `Dump prints the stack-form listing of a program. With --convert it
re-encodes the program instead, choosing the format by extension.`,
	Args: cobra.ExactArgs(1),
	RunE: dumpExecution,
}

func init() {
	dumpCmd.Flags().String("convert", "", "write the program to this file (.json, .msgpack or .mp)")
	dumpCmd.Flags().Bool("validate", true, "check structural invariants before printing")
}

func dumpExecution(cmd *cobra.Command, args []string) error {
	convert, err := cmd.Flags().GetString("convert")
	if err != nil {
		return err
	}
	validate, err := cmd.Flags().GetBool("validate")
	if err != nil {
		return err
	}

	p, err := lowir.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if validate {
		if err := lowir.Validate(p); err != nil {
			return err
		}
	}
	if convert != "" {
		if err := lowir.WriteFile(convert, p); err != nil {
			return fmt.Errorf("failed to write %s: %w", convert, err)
		}
		if !settingsFrom(cmd).quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", convert)
		}
		return nil
	}
	return lowir.Dump(cmd.OutOrStdout(), p)
}
