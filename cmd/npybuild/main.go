// Command npybuild runs the code generation builders, configuration probes
// and extension configuration from the command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/contriboss/npybuild"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	configPath string
	verbose    bool

	logger *zap.Logger
	config *npybuild.BuildConfig
)

var rootCmd = &cobra.Command{
	Use:   "npybuild",
	Short: "Build helpers for the numerical array library",
	Long: `npybuild generates the C API tables, expands .src templates, generates
the ufunc dispatch code and runs the compiler configuration probes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		config, err = npybuild.LoadBuildConfig(configPath)
		if err != nil {
			return err
		}
		if verbose {
			config.Verbose = true
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", npybuild.DefaultConfigFile, "build configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(generateCmd, emitCmd, buildersCmd, probeCmd, configureCmd, checkAPICmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
