package npybuild

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read by the npybuild binary when present.
const DefaultConfigFile = "npybuild.yaml"

// DefaultBuildConfig returns the configuration used without a config file.
func DefaultBuildConfig() *BuildConfig {
	return &BuildConfig{
		Compiler: "cc",
		CFlags:   []string{},
		LDFlags:  []string{},
		Libs:     []string{},
		BuildDir: "build",
		Env:      make(map[string]string),
	}
}

// LoadBuildConfig reads a YAML build configuration and applies environment
// overrides. A missing file yields the defaults.
//
// # Environment Overrides
//
//   - CC: compiler driver
//   - CFLAGS, LDFLAGS: whitespace separated flags
//   - LIBS: whitespace separated libraries (without -l)
//   - NPY_BUILD_DIR: build directory
func LoadBuildConfig(path string) (*BuildConfig, error) {
	config := DefaultBuildConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(config, os.LookupEnv)

	if config.Env == nil {
		config.Env = make(map[string]string)
	}
	return config, nil
}

func applyEnvOverrides(config *BuildConfig, lookup func(string) (string, bool)) {
	if v, ok := lookup("CC"); ok && v != "" {
		config.Compiler = v
	}
	if v, ok := lookup("CFLAGS"); ok {
		config.CFlags = strings.Fields(v)
	}
	if v, ok := lookup("LDFLAGS"); ok {
		config.LDFlags = strings.Fields(v)
	}
	if v, ok := lookup("LIBS"); ok {
		config.Libs = strings.Fields(v)
	}
	if v, ok := lookup("NPY_BUILD_DIR"); ok && v != "" {
		config.BuildDir = v
	}
}

// NewEnv returns the generation Env for this configuration.
func (c *BuildConfig) NewEnv(logger *zap.Logger) *Env {
	vars := make(map[string]string, len(c.Env))
	for k, v := range c.Env {
		vars[k] = v
	}
	return &Env{Vars: vars, Logger: logger}
}
