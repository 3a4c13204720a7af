package npybuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func clearBuildEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CC", "CFLAGS", "LDFLAGS", "LIBS", "NPY_BUILD_DIR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadBuildConfigMissingFile(t *testing.T) {
	clearBuildEnv(t)

	config, err := LoadBuildConfig(filepath.Join(t.TempDir(), DefaultConfigFile))
	require.NoError(t, err)
	assert.Equal(t, DefaultBuildConfig(), config)
}

func TestLoadBuildConfigFile(t *testing.T) {
	clearBuildEnv(t)

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	content := `compiler: gcc
cflags: [-O2, -fno-strict-aliasing]
libs: [npymath]
build_dir: build/src.linux-x86_64-2.7
env:
  TEMPLATECOMSTR: "Expanding $SOURCE"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := LoadBuildConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "gcc", config.Compiler)
	assert.Equal(t, []string{"-O2", "-fno-strict-aliasing"}, config.CFlags)
	assert.Equal(t, []string{"npymath"}, config.Libs)
	assert.Equal(t, "build/src.linux-x86_64-2.7", config.BuildDir)

	env := config.NewEnv(zap.NewNop())
	assert.Equal(t, "Expanding $SOURCE", env.Vars["TEMPLATECOMSTR"])

	env.Vars["TEMPLATECOMSTR"] = "changed"
	assert.Equal(t, "Expanding $SOURCE", config.Env["TEMPLATECOMSTR"], "Env must copy the variables")
}

func TestLoadBuildConfigEnvOverrides(t *testing.T) {
	clearBuildEnv(t)
	t.Setenv("CC", "clang")
	t.Setenv("CFLAGS", "-O0  -g")
	t.Setenv("LIBS", "")
	t.Setenv("NPY_BUILD_DIR", "out")

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("compiler: gcc\nlibs: [m]\n"), 0o644))

	config, err := LoadBuildConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "clang", config.Compiler)
	assert.Equal(t, []string{"-O0", "-g"}, config.CFlags)
	assert.Empty(t, config.Libs, "a set but empty LIBS clears the list")
	assert.Equal(t, "out", config.BuildDir)
}

func TestLoadBuildConfigInvalidYAML(t *testing.T) {
	clearBuildEnv(t)

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("cflags: {not: [a list"), 0o644))

	_, err := LoadBuildConfig(path)
	assert.Error(t, err)
}
