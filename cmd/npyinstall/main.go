// Command npyinstall copies the built binaries and Python sources into an
// IronPython installation.
//
// Usage:
//
//	npyinstall <path_to_build_binaries>
//
// The prefix comes from NPY_PREFIX or the location of ipy on PATH.
// NPY_SOURCE_DIR overrides the package source tree. A .env file in the
// working directory is loaded first.
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

func newLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if os.Getenv("NPY_VERBOSE") != "" {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "npyinstall <path_to_build_binaries>",
		Short:         "Install the built binaries and Python sources",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			prefix, err := npybuild.DiscoverPrefix()
			if err != nil {
				return err
			}

			result, err := npybuild.Install(cmd.Context(), &npybuild.InstallConfig{
				BinDir:    npybuild.NormalizeBinDir(args[0]),
				Prefix:    prefix,
				SourceDir: os.Getenv("NPY_SOURCE_DIR"),
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			for _, path := range result.Installed {
				fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", path)
			}
			return nil
		},
	}
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "npyinstall: %v\n", err)
		os.Exit(1)
	}
}
