package npybuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeToolchain stands in for the C compiler and the probe programs.
type fakeToolchain struct {
	compiles func(src string, args []string) bool
	runs     func(src string, args []string) bool

	lastSrc  string
	lastArgs []string
	compiled []string
}

func (f *fakeToolchain) exec(_ map[string]string, _, stderr io.Writer, cmd string, args ...string) (bool, error) {
	if cmd != "cc" {
		if f.runs != nil && f.runs(f.lastSrc, f.lastArgs) {
			return true, nil
		}
		return true, errors.New("exit status 1")
	}

	var src string
	for _, arg := range args {
		if strings.HasSuffix(arg, ".c") {
			data, err := os.ReadFile(arg)
			if err != nil {
				return false, err
			}
			src = string(data)
		}
	}
	f.lastSrc, f.lastArgs = src, slices.Clone(args)
	f.compiled = append(f.compiled, src)

	if f.compiles != nil && !f.compiles(src, args) {
		fmt.Fprintln(stderr, "conftest.c: error")
		return true, errors.New("exit status 1")
	}
	return true, nil
}

func useFakeToolchain(t *testing.T, f *fakeToolchain) {
	t.Helper()
	orig := shExec
	shExec = f.exec
	t.Cleanup(func() { shExec = orig })
}

func newTestProber(t *testing.T, libs ...string) *Prober {
	t.Helper()
	return &Prober{Compiler: "cc", Libs: libs, WorkDir: t.TempDir()}
}

func TestCheckInlinePrefersFirstCandidate(t *testing.T) {
	useFakeToolchain(t, &fakeToolchain{
		compiles: func(string, []string) bool { return true },
	})

	assert.Equal(t, "inline", newTestProber(t).CheckInline(context.Background()))
}

func TestCheckInlineOnlyGNUSpelling(t *testing.T) {
	fake := &fakeToolchain{
		compiles: func(src string, _ []string) bool {
			return strings.Contains(src, "static __inline__ int")
		},
	}
	useFakeToolchain(t, fake)

	assert.Equal(t, "__inline__", newTestProber(t).CheckInline(context.Background()))
	assert.Len(t, fake.compiled, 2, "should stop at the first spelling that compiles")
}

func TestCheckInlineNoSupport(t *testing.T) {
	fake := &fakeToolchain{
		compiles: func(string, []string) bool { return false },
	}
	useFakeToolchain(t, fake)

	assert.Equal(t, NoInline, newTestProber(t).CheckInline(context.Background()))
	assert.Len(t, fake.compiled, len(inlineCandidates))
}

func TestCheckGCC4(t *testing.T) {
	testCases := []struct {
		name     string
		compiles bool
	}{
		{"gcc", true},
		{"other compiler", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeToolchain{
				compiles: func(string, []string) bool { return tc.compiles },
			}
			useFakeToolchain(t, fake)

			assert.Equal(t, tc.compiles, newTestProber(t).CheckGCC4(context.Background()))
			require.Len(t, fake.compiled, 1)
			assert.Contains(t, fake.compiled[0], "die from an horrible death")
			assert.Contains(t, fake.lastArgs, "-c")
		})
	}
}

func TestCheckBrokenMathlibLeavesLibsUntouched(t *testing.T) {
	testCases := []struct {
		name   string
		usable bool
	}{
		{"usable", true},
		{"broken", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeToolchain{
				runs: func(string, []string) bool { return tc.usable },
			}
			useFakeToolchain(t, fake)

			prober := newTestProber(t, "npymath")
			before := slices.Clone(prober.Libs)

			ok, probeLibs := prober.CheckBrokenMathlib(context.Background(), "m")

			assert.Equal(t, tc.usable, ok)
			assert.Equal(t, before, prober.Libs)
			assert.Equal(t, []string{"npymath", "m"}, probeLibs)
			assert.Contains(t, fake.lastArgs, "-lnpymath")
			assert.Contains(t, fake.lastArgs, "-lm")
			assert.Contains(t, fake.lastSrc, "exp(-720.)")
		})
	}
}

func TestCheckBrokenMathlibDoesNotDuplicate(t *testing.T) {
	fake := &fakeToolchain{runs: func(string, []string) bool { return true }}
	useFakeToolchain(t, fake)

	prober := newTestProber(t, "m")
	_, probeLibs := prober.CheckBrokenMathlib(context.Background(), "m")

	assert.Equal(t, []string{"m"}, probeLibs)
}

func TestSelectMathlibs(t *testing.T) {
	fake := &fakeToolchain{
		runs: func(_ string, args []string) bool { return slices.Contains(args, "-lcpml") },
	}
	useFakeToolchain(t, fake)

	prober := newTestProber(t)
	libs, ok := prober.SelectMathlibs(context.Background(), [][]string{{"m"}, {"cpml"}})

	require.True(t, ok)
	assert.Equal(t, []string{"cpml"}, libs)
	assert.Empty(t, prober.Libs)
}

func TestProbeCompileFailureIsNegative(t *testing.T) {
	useFakeToolchain(t, &fakeToolchain{
		compiles: func(string, []string) bool { return false },
		runs:     func(string, []string) bool { return true },
	})

	ok, _ := newTestProber(t).TryRun(context.Background(), "int main(){}", ".c", nil)
	assert.False(t, ok)
}

func TestProbeCanceledContext(t *testing.T) {
	fake := &fakeToolchain{}
	useFakeToolchain(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, newTestProber(t).TryCompile(ctx, "int x;", ".c"))
	assert.Empty(t, fake.compiled)
}

func TestWithLibsReturnsCopy(t *testing.T) {
	libs := make([]string, 1, 4)
	libs[0] = "a"

	got := WithLibs(libs, "b", "a", "")

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, []string{"a"}, libs)
	assert.Equal(t, "", libs[:2][1], "backing array must not be written")
}

func TestPlatformDefines(t *testing.T) {
	assert.True(t, IsNoSignal("windows"))
	assert.False(t, IsNoSignal("linux"))

	env := map[string]string{"NPY_NOSMP": ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	assert.True(t, DefineNoSMP(lookup))

	delete(env, "NPY_NOSMP")
	assert.False(t, DefineNoSMP(lookup))
}

func TestVerboseCompileFailureLogLevel(t *testing.T) {
	useFakeToolchain(t, &fakeToolchain{
		compiles: func(string, []string) bool { return false },
	})

	testCases := []struct {
		verbose bool
		level   zapcore.Level
	}{
		{false, zapcore.DebugLevel},
		{true, zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("verbose=%v", tc.verbose), func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			config := &BuildConfig{Compiler: "cc", WorkDir: t.TempDir(), Verbose: tc.verbose}
			prober := NewProber(config, zap.New(core))
			require.Equal(t, tc.verbose, prober.Verbose)

			assert.False(t, prober.TryCompile(context.Background(), "int x", ".c"))

			entries := logs.FilterMessage("probe compile failed").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.level, entries[0].Level)
			assert.Contains(t, entries[0].ContextMap()["error"], "conftest.c: error")
		})
	}
}
