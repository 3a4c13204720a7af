package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/contriboss/npybuild"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	cfgParent     string
	cfgRoot       string
	cfgIncludeDir string
	cfgListDeps   bool

	apiVersion   int
	apiManifest  string
	apiCVersions string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Resolve extension configurations",
}

var configureRandomCmd = &cobra.Command{
	Use:   "random",
	Short: "Resolve the mtrand extension and print it as YAML",
	RunE:  runConfigureRandom,
}

var checkAPICmd = &cobra.Command{
	Use:   "check-api",
	Short: "Compare a generated API manifest with the recorded API version",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := npybuild.CheckAPIVersion(apiVersion, apiManifest, apiCVersions)

		var mismatch *npybuild.APIVersionMismatchError
		if errors.As(err, &mismatch) {
			logger.Warn(mismatch.Error(),
				zap.Int("version", mismatch.Version),
				zap.String("recorded", mismatch.Recorded),
				zap.String("current", mismatch.Current))
			return nil
		}
		return err
	},
}

func init() {
	configureRandomCmd.Flags().StringVar(&cfgParent, "parent", "numpy", "parent package")
	configureRandomCmd.Flags().StringVar(&cfgRoot, "root", ".", "package source directory (for dependency globs)")
	configureRandomCmd.Flags().StringVar(&cfgIncludeDir, "include-dir", "", "ndarray include directory")
	configureRandomCmd.Flags().BoolVar(&cfgListDeps, "list-depends", false, "also list files matched by the dependency globs")
	configureCmd.AddCommand(configureRandomCmd)

	checkAPICmd.Flags().IntVar(&apiVersion, "version", 0, "C API version")
	checkAPICmd.Flags().StringVar(&apiManifest, "manifest", "", "generated API manifest (.txt)")
	checkAPICmd.Flags().StringVar(&apiCVersions, "cversions", "cversions.txt", "recorded API checksums")
	_ = checkAPICmd.MarkFlagRequired("manifest")
}

type configureOutput struct {
	Package   string                      `yaml:"package"`
	Extension *npybuild.ResolvedExtension `yaml:"extension"`
	DataFiles []npybuild.DataFile         `yaml:"data_files,omitempty"`
	DataDirs  []string                    `yaml:"data_dirs,omitempty"`
	DepFiles  []string                    `yaml:"dependency_files,omitempty"`
	Probes    map[string]interface{}      `yaml:"probes"`
}

func runConfigureRandom(cmd *cobra.Command, args []string) error {
	pkg, err := npybuild.RandomConfiguration(cfgParent, "", npybuild.NDArrayInfo(cfgIncludeDir))
	if err != nil {
		return err
	}

	ext, ok := pkg.Extension("mtrand")
	if !ok {
		return errors.New("mtrand extension not declared")
	}

	prober := npybuild.NewProber(config, logger)
	results, err := npybuild.ProbeRandomLibraries(cmd.Context(), prober, config.BuildDir, runtime.GOOS)
	if err != nil {
		return err
	}

	resolved, err := ext.Resolve(results)
	if err != nil {
		return err
	}

	out := configureOutput{
		Package:   pkg.Name,
		Extension: resolved,
		DataFiles: pkg.DataFiles,
		DataDirs:  pkg.DataDirs,
		Probes: map[string]interface{}{
			"wincrypt": results.HasWinCrypt,
			"mathlibs": results.MathLibs,
		},
	}
	if cfgListDeps {
		if out.DepFiles, err = ext.DependencyFiles(cfgRoot); err != nil {
			return err
		}
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	return enc.Close()
}
