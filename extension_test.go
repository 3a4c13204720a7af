package npybuild

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomConfiguration(t *testing.T) {
	config, err := RandomConfiguration("numpy", "", NDArrayInfo("/usr/include/ndarray"))
	require.NoError(t, err)

	assert.Equal(t, "numpy.random", config.Name)
	require.Len(t, config.Extensions, 1)

	ext, ok := config.Extension("mtrand")
	require.True(t, ok)
	assert.Equal(t, "numpy.random.mtrand", ext.Name)

	wantSources := []string{
		filepath.Join("mtrand", "mtrand.c"),
		filepath.Join("mtrand", "randomkit.c"),
		filepath.Join("mtrand", "initarray.c"),
		filepath.Join("mtrand", "distributions.c"),
	}
	if diff := cmp.Diff(wantSources, ext.Sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"/usr/include/ndarray"}, ext.IncludeDirs)
	assert.Empty(t, ext.Libraries, "probe-dependent libraries are added by Resolve")

	assert.Equal(t, []DataFile{{Dest: ".", Files: []string{filepath.Join("mtrand", "randomkit.h")}}}, config.DataFiles)
	assert.Equal(t, []string{"tests"}, config.DataDirs)

	_, ok = config.Extension("numpy.random.mtrand")
	assert.True(t, ok, "qualified lookup")
}

func TestResolveLibraryOrder(t *testing.T) {
	ext := &Extension{Name: "mtrand", Sources: []string{"mtrand.c"}, Libraries: []string{"npymath"}}

	testCases := []struct {
		name     string
		results  ProbeResults
		expected []string
	}{
		{"posix", ProbeResults{MathLibs: []string{"m"}}, []string{"npymath", "m"}},
		{"windows", ProbeResults{HasWinCrypt: true, MathLibs: []string{}}, []string{"npymath", "Advapi32"}},
		{"both", ProbeResults{HasWinCrypt: true, MathLibs: []string{"m", "cpml"}}, []string{"npymath", "m", "cpml", "Advapi32"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resolved, err := ext.Resolve(tc.results)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, resolved.Libraries)
			assert.Equal(t, []string{"npymath"}, ext.Libraries, "declared extension must not change")
		})
	}
}

func TestResolveDoesNotAliasMathLibs(t *testing.T) {
	mathlibs := make([]string, 1, 8)
	mathlibs[0] = "m"
	ext := &Extension{Name: "x", Sources: []string{"x.c"}}

	resolved, err := ext.Resolve(ProbeResults{HasWinCrypt: true, MathLibs: mathlibs})
	require.NoError(t, err)

	resolved.Libraries[0] = "changed"
	assert.Equal(t, "m", mathlibs[0])
	assert.Equal(t, "", mathlibs[:2][1])
}

func TestResolveRequiresSources(t *testing.T) {
	_, err := (&Extension{Name: "empty"}).Resolve(ProbeResults{})
	assert.True(t, errors.Is(err, ErrEmptySources))

	_, err = NewConfiguration("random", "numpy", "").AddExtension(Extension{Name: "empty"}, Info{})
	assert.True(t, errors.Is(err, ErrEmptySources))
}

func TestMathLibs(t *testing.T) {
	testCases := []struct {
		name     string
		configH  string
		goos     string
		expected []string
	}{
		{"recorded", "#define HAVE_SIN 1\n#define MATHLIB m,cpml\n", "linux", []string{"m", "cpml"}},
		{"spaced", "#define MATHLIB m, cpml\n", "linux", []string{"m", "cpml"}},
		{"empty define", "#define MATHLIB\n", "linux", []string{}},
		{"missing define", "#define HAVE_SIN 1\n", "linux", []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.h"), []byte(tc.configH), 0o644))

			libs, err := MathLibs(dir, tc.goos)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, libs)
		})
	}
}

func TestMathLibsPlatformDefaults(t *testing.T) {
	libs, err := MathLibs("", "windows")
	require.NoError(t, err)
	assert.Equal(t, []string{}, libs)

	libs, err = MathLibs("", "linux")
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, libs)
}

func TestMathLibsMissingConfigHeader(t *testing.T) {
	_, err := MathLibs(t.TempDir(), "linux")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDependencyFiles(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"randomkit.h", "distributions.h", "mtrand.pyx", "numpy.pxi", "mtrand.c"} {
		require.NoError(t, writeFile(filepath.Join(root, "mtrand", name), ""))
	}
	require.NoError(t, writeFile(filepath.Join(root, "mtrand", "generated", "deep.h"), ""))

	config, err := RandomConfiguration("numpy", "", Info{})
	require.NoError(t, err)
	ext, _ := config.Extension("mtrand")
	ext.Depends = append(ext.Depends, filepath.Join("mtrand", "**", "*.h"))

	files, err := ext.DependencyFiles(root)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{
		"mtrand/distributions.h",
		"mtrand/generated/deep.h",
		"mtrand/mtrand.pyx",
		"mtrand/numpy.pxi",
		"mtrand/randomkit.h",
	}, rel)
}

func TestProbeRandomLibraries(t *testing.T) {
	testCases := []struct {
		name     string
		win32    bool
		expected []string
	}{
		{"windows", true, []string{"m", "Advapi32"}},
		{"posix", false, []string{"m"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeToolchain{
				runs: func(src string, _ []string) bool {
					return strings.Contains(src, "_WIN32") && tc.win32
				},
			}
			useFakeToolchain(t, fake)

			results, err := ProbeRandomLibraries(context.Background(), newTestProber(t), "", "linux")
			require.NoError(t, err)
			assert.Equal(t, tc.win32, results.HasWinCrypt)

			ext := &Extension{Name: "mtrand", Sources: []string{"mtrand.c"}}
			resolved, err := ext.Resolve(results)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, resolved.Libraries)
		})
	}
}
