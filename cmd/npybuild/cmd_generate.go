package main

import (
	"fmt"

	"github.com/contriboss/npybuild"
	"github.com/spf13/cobra"
)

var (
	genTargets []string
	genSources []string
)

// generateCmd runs one builder
var generateCmd = &cobra.Command{
	Use:   "generate [builder]",
	Short: "Run a generation builder",
	Long: `Runs a registered builder and verifies that every output it declares was
produced.

With several --target values the targets and sources are processed pairwise.
FromTemplate writes each output next to its target:

  npybuild generate FromTemplate \
      --target build/src/loops.c --target build/src/scalarmath.c \
      --source src/loops.c.src --source src/scalarmath.c.src`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

// emitCmd prints the outputs a builder would produce
var emitCmd = &cobra.Command{
	Use:   "emit [builder]",
	Short: "Print the outputs a builder declares for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(genTargets) != 1 {
			return fmt.Errorf("emit takes exactly one --target")
		}
		outputs, err := npybuild.NewRegistry().Emit(args[0], genTargets[0], genSources)
		if err != nil {
			return err
		}
		for _, out := range outputs {
			fmt.Fprintln(cmd.OutOrStdout(), out)
		}
		return nil
	},
}

var buildersCmd = &cobra.Command{
	Use:   "builders",
	Short: "List registered builders",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range npybuild.NewRegistry().Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{generateCmd, emitCmd} {
		c.Flags().StringSliceVarP(&genTargets, "target", "t", nil, "logical target (repeatable)")
		c.Flags().StringSliceVarP(&genSources, "source", "s", nil, "source file (repeatable)")
		_ = c.MarkFlagRequired("target")
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	registry := npybuild.NewRegistry()
	env := config.NewEnv(logger)

	var (
		outputs []string
		err     error
	)
	if len(genTargets) == 1 {
		outputs, err = registry.Run(cmd.Context(), args[0], env, genTargets[0], genSources)
	} else {
		outputs, err = registry.RunPairs(cmd.Context(), args[0], env, genTargets, genSources)
	}
	if err != nil {
		return err
	}

	for _, out := range outputs {
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}
