package npybuild

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type installFixture struct {
	binDir string
	prefix string
	srcDir string
}

func newInstallFixture(t *testing.T) installFixture {
	t.Helper()
	root := t.TempDir()
	f := installFixture{
		binDir: filepath.Join(root, "bin"),
		prefix: filepath.Join(root, "ipy"),
		srcDir: filepath.Join(root, "src"),
	}

	for _, name := range DefaultBinaries {
		mustWrite(t, filepath.Join(f.binDir, name), "new "+name)
	}
	mustWrite(t, filepath.Join(f.srcDir, "__init__.py"), "import core\n")
	mustWrite(t, filepath.Join(f.srcDir, "core", "numeric.py"), "def zeros(): pass\n")
	mustWrite(t, filepath.Join(f.srcDir, "core", "multiarray.c"), "/* not copied */\n")
	mustWrite(t, filepath.Join(f.srcDir, "README.txt"), "docs\n")
	return f
}

func (f installFixture) config() *InstallConfig {
	return &InstallConfig{BinDir: f.binDir, Prefix: f.prefix, SourceDir: f.srcDir}
}

func (f installFixture) pkgDir() string {
	return filepath.Join(f.prefix, "Lib", "site-packages", "numpy")
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, writeFile(path, content))
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestInstallCopiesBinariesAndSources(t *testing.T) {
	f := newInstallFixture(t)

	result, err := Install(context.Background(), f.config())
	require.NoError(t, err)

	require.Len(t, result.Installed, len(DefaultBinaries))
	for _, name := range DefaultBinaries {
		assert.Equal(t, "new "+name, readString(t, filepath.Join(f.prefix, "DLLs", name)))
	}

	assert.ElementsMatch(t, []string{
		filepath.Join(f.pkgDir(), "__init__.py"),
		filepath.Join(f.pkgDir(), "core", "numeric.py"),
	}, result.Copied)
	assert.NoFileExists(t, filepath.Join(f.pkgDir(), "core", "multiarray.c"))
	assert.NoFileExists(t, filepath.Join(f.pkgDir(), "README.txt"))

	assert.Equal(t, filepath.Join(f.pkgDir(), "__config__.py"), result.ConfigPath)
	assert.Equal(t, ConfigStub, readString(t, result.ConfigPath))
}

func TestInstallSourceFilterIgnoresCase(t *testing.T) {
	f := newInstallFixture(t)
	mustWrite(t, filepath.Join(f.srcDir, "lib", "LEGACY.PY"), "x = 1\n")

	result, err := Install(context.Background(), f.config())
	require.NoError(t, err)

	assert.Contains(t, result.Copied, filepath.Join(f.pkgDir(), "lib", "LEGACY.PY"))
}

func TestInstallMovesExistingBinariesAside(t *testing.T) {
	f := newInstallFixture(t)
	existing := filepath.Join(f.prefix, "DLLs", "ndarray.dll")
	mustWrite(t, existing, "old ndarray")

	result, err := Install(context.Background(), f.config())
	require.NoError(t, err)

	backup, ok := result.BackedUp[existing]
	require.True(t, ok, "expected %s to be moved aside, got %v", existing, result.BackedUp)
	t.Cleanup(func() { os.RemoveAll(filepath.Dir(backup)) })

	assert.Equal(t, "old ndarray", readString(t, backup))
	assert.Equal(t, "new ndarray.dll", readString(t, existing))
	assert.Len(t, result.BackedUp, 1, "only pre-existing binaries are moved")
}

func TestInstallTrailingQuoteInBinDir(t *testing.T) {
	f := newInstallFixture(t)
	config := f.config()
	config.BinDir += `"`

	result, err := Install(context.Background(), config)
	require.NoError(t, err)
	assert.Len(t, result.Installed, len(DefaultBinaries))
}

func TestInstallOverwritesConfigStub(t *testing.T) {
	f := newInstallFixture(t)
	stub := filepath.Join(f.pkgDir(), "__config__.py")
	mustWrite(t, stub, "stale = True\n")

	_, err := Install(context.Background(), f.config())
	require.NoError(t, err)
	assert.Equal(t, ConfigStub, readString(t, stub))
}

func TestInstallMissingBinaryAborts(t *testing.T) {
	f := newInstallFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.binDir, "NumpyDotNet.dll")))

	_, err := Install(context.Background(), f.config())
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(f.pkgDir(), "__config__.py"),
		"config stub must not be written after a failed copy")
}

func TestInstallRequiresPaths(t *testing.T) {
	_, err := Install(context.Background(), &InstallConfig{Prefix: t.TempDir()})
	assert.Error(t, err, "binary directory is required")

	_, err = Install(context.Background(), &InstallConfig{BinDir: t.TempDir()})
	assert.Error(t, err, "prefix is required")
}

func TestNormalizeBinDir(t *testing.T) {
	testCases := map[string]string{
		`C:\build\bin"`: `C:\build\bin`,
		`C:\build\bin`:  `C:\build\bin`,
		`/opt/bin""`:    `/opt/bin"`,
	}
	for in, expected := range testCases {
		assert.Equal(t, expected, NormalizeBinDir(in), in)
	}
}

func TestDiscoverPrefix(t *testing.T) {
	t.Setenv("NPY_PREFIX", "/opt/ironpython")
	prefix, err := DiscoverPrefix()
	require.NoError(t, err)
	assert.Equal(t, "/opt/ironpython", prefix)

	t.Setenv("NPY_PREFIX", "")
	useLookPath(t, map[string]string{"ipy64": "/usr/lib/ironpython/ipy64"})

	prefix, err = DiscoverPrefix()
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/ironpython", prefix)

	useLookPath(t, nil)
	_, err = DiscoverPrefix()
	assert.Error(t, err)
}
