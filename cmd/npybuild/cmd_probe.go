package main

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/contriboss/npybuild"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run compiler configuration probes",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if cmd == probeDefinesCmd {
			return nil
		}
		return npybuild.NewProber(config, logger).CheckTools()
	},
}

var probeGCC4Cmd = &cobra.Command{
	Use:   "gcc4",
	Short: "Check for gcc 4.x or above",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok := npybuild.NewProber(config, logger).CheckGCC4(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), yesNo(ok))
		return nil
	},
}

var probeInlineCmd = &cobra.Command{
	Use:   "inline",
	Short: "Find the inline keyword spelling",
	RunE: func(cmd *cobra.Command, args []string) error {
		kw := npybuild.NewProber(config, logger).CheckInline(cmd.Context())
		if kw == npybuild.NoInline {
			fmt.Fprintln(cmd.OutOrStdout(), "0")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), kw)
		return nil
	},
}

var probeMathlibCmd = &cobra.Command{
	Use:   "mathlib [lib[,lib...]]...",
	Short: "Find the first usable math library set",
	Long: `Each argument is a comma separated candidate set, tried in order:

  npybuild probe mathlib m cpml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		candidates := make([][]string, 0, len(args))
		for _, arg := range args {
			candidates = append(candidates, strings.Split(arg, ","))
		}

		libs, ok := npybuild.NewProber(config, logger).SelectMathlibs(cmd.Context(), candidates)
		if !ok {
			return errors.New("no usable math library found")
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(libs, ","))
		return nil
	},
}

var probeDefinesCmd = &cobra.Command{
	Use:   "defines",
	Short: "Print platform defines for the configuration header",
	RunE: func(cmd *cobra.Command, args []string) error {
		if npybuild.IsNoSignal(runtime.GOOS) {
			fmt.Fprintln(cmd.OutOrStdout(), "#define NPY_NO_SIGNAL")
		}
		if npybuild.DefineNoSMP(nil) {
			fmt.Fprintln(cmd.OutOrStdout(), "#define NPY_NOSMP 1")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "#define NPY_NOSMP 0")
		}
		logger.Debug("platform defines", zap.String("goos", runtime.GOOS))
		return nil
	},
}

func init() {
	probeCmd.AddCommand(probeGCC4Cmd, probeInlineCmd, probeMathlibCmd, probeDefinesCmd)
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
