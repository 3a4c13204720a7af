package npybuild

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/magefile/mage/sh"
	"go.uber.org/zap"
)

// shExec runs external commands; overridden in tests.
var shExec = sh.Exec

// NoInline is returned by CheckInline when no candidate keyword compiles.
const NoInline = ""

// inlineCandidates are tried in order; earlier spellings win.
var inlineCandidates = []string{"inline", "__inline__", "__inline"}

// Prober runs compile-only and compile-and-run checks with the C compiler.
//
// A probe that fails to compile or run is a negative answer. Probes never
// retry and never return errors for compiler failures.
type Prober struct {
	Compiler string
	CFlags   []string
	LDFlags  []string
	Libs     []string
	WorkDir  string
	Env      map[string]string
	Logger   *zap.Logger

	// Verbose logs the compiler output of failed probes at info level.
	Verbose bool
}

var _ ToolChecker = (*Prober)(nil)

// NewProber creates a prober from a build configuration.
func NewProber(config *BuildConfig, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	compiler := config.Compiler
	if compiler == "" {
		compiler = "cc"
	}
	return &Prober{
		Compiler: compiler,
		CFlags:   slices.Clone(config.CFlags),
		LDFlags:  slices.Clone(config.LDFlags),
		Libs:     slices.Clone(config.Libs),
		WorkDir:  config.WorkDir,
		Env:      config.Env,
		Logger:   logger,
		Verbose:  config.Verbose,
	}
}

// RequiredTools returns the compiler requirement
func (p *Prober) RequiredTools() []ToolRequirement {
	return []ToolRequirement{
		{
			Name:         p.Compiler,
			Alternatives: []string{"gcc", "clang", "cl"},
			Purpose:      "C compiler for configuration probes",
		},
	}
}

// CheckTools verifies that a C compiler is available
func (p *Prober) CheckTools() error {
	return CheckRequiredTools(p.RequiredTools())
}

func (p *Prober) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// TryCompile reports whether src compiles to an object file.
func (p *Prober) TryCompile(ctx context.Context, src, ext string) bool {
	ok, _ := p.probe(ctx, src, ext, nil, false)
	return ok
}

// TryRun compiles and links src against libs, runs it and reports whether it
// exited with status 0, along with the program output.
func (p *Prober) TryRun(ctx context.Context, src, ext string, libs []string) (bool, string) {
	return p.probe(ctx, src, ext, libs, true)
}

func (p *Prober) probe(ctx context.Context, src, ext string, libs []string, run bool) (bool, string) {
	log := p.logger()

	if ctx.Err() != nil {
		return false, ""
	}

	if p.WorkDir != "" {
		if err := os.MkdirAll(p.WorkDir, 0o755); err != nil {
			log.Debug("probe work dir", zap.Error(err))
			return false, ""
		}
	}
	dir, err := os.MkdirTemp(p.WorkDir, "conftest")
	if err != nil {
		log.Debug("probe temp dir", zap.Error(err))
		return false, ""
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "conftest"+ext)
	if err := os.WriteFile(srcPath, []byte(src), 0o644); err != nil {
		log.Debug("probe source", zap.Error(err))
		return false, ""
	}

	var output bytes.Buffer
	args := append([]string{}, p.CFlags...)
	binPath := filepath.Join(dir, "conftest")

	if run {
		if runtime.GOOS == "windows" {
			binPath += ".exe"
		}
		args = append(args, srcPath, "-o", binPath)
		args = append(args, p.LDFlags...)
		for _, lib := range libs {
			args = append(args, "-l"+lib)
		}
	} else {
		args = append(args, "-c", srcPath, "-o", binPath+".o")
	}

	if _, err := shExec(p.Env, &output, &output, p.Compiler, args...); err != nil {
		p.failure("probe compile failed", zap.Error(BuildError(p.Compiler, []string{output.String()}, err)))
		return false, output.String()
	}
	if !run {
		return true, output.String()
	}

	output.Reset()
	if _, err := shExec(p.Env, &output, &output, binPath); err != nil {
		p.failure("probe run failed", zap.Int("status", sh.ExitStatus(err)), zap.String("output", output.String()))
		return false, output.String()
	}
	return true, output.String()
}

func (p *Prober) failure(msg string, fields ...zap.Field) {
	if p.Verbose {
		p.logger().Info(msg, fields...)
		return
	}
	p.logger().Debug(msg, fields...)
}

// WithLibs returns a copy of libs with extra appended, skipping duplicates.
// libs itself is never modified.
func WithLibs(libs []string, extra ...string) []string {
	return appendUnique(libs, extra...)
}

func (p *Prober) result(check string, ok bool, detail ...zap.Field) {
	fields := append([]zap.Field{zap.String("check", check), zap.Bool("result", ok)}, detail...)
	p.logger().Info("configuration check", fields...)
}

const gcc4Source = `
int
main()
{
#if !(defined __GNUC__ && (__GNUC__ >= 4))
die from an horrible death
#endif
}
`

// CheckGCC4 reports whether the compiler is gcc 4.x or above.
//
// The negative branch is not valid C, so other compiler families fail to
// compile it.
func (p *Prober) CheckGCC4(ctx context.Context) bool {
	ok := p.TryCompile(ctx, gcc4Source, ".c")
	p.result("gcc >= 4", ok)
	return ok
}

const brokenMathlibSource = `
/* check whether libm is broken */
#include <math.h>
int main(int argc, char *argv[])
{
  return exp(-720.) > 1.0;  /* typically an IEEE denormal */
}
`

// CheckBrokenMathlib reports whether mathlib links and computes an
// underflowing exp correctly.
//
// The probe links against the prober's libraries plus mathlib. That link
// set is returned as a new value for the caller to adopt or discard;
// p.Libs is left untouched whatever the outcome.
func (p *Prober) CheckBrokenMathlib(ctx context.Context, mathlib ...string) (bool, []string) {
	libs := WithLibs(p.Libs, mathlib...)
	ok, _ := p.TryRun(ctx, brokenMathlibSource, ".c", libs)
	p.result("usable math lib", ok, zap.Strings("mathlib", mathlib))
	return ok, libs
}

// SelectMathlibs returns the first candidate set that passes
// CheckBrokenMathlib, in order.
func (p *Prober) SelectMathlibs(ctx context.Context, candidates [][]string) ([]string, bool) {
	for _, libs := range candidates {
		if ok, _ := p.CheckBrokenMathlib(ctx, libs...); ok {
			return slices.Clone(libs), true
		}
	}
	return nil, false
}

const inlineSource = `
#ifndef __cplusplus
static %[1]s int static_func (void)
{
    return 0;
}
%[1]s int nostatic_func (void)
{
    return 0;
}
#endif
`

// CheckInline returns the first inline keyword spelling that compiles, or
// NoInline if none does.
func (p *Prober) CheckInline(ctx context.Context) string {
	for _, kw := range inlineCandidates {
		if p.TryCompile(ctx, inlineProgram(kw), ".c") {
			p.result("inline keyword", true, zap.String("keyword", kw))
			return kw
		}
	}
	p.result("inline keyword", false)
	return NoInline
}

func inlineProgram(keyword string) string {
	return fmt.Sprintf(inlineSource, keyword)
}

// IsNoSignal reports whether NPY_NO_SIGNAL must be defined for goos.
func IsNoSignal(goos string) bool {
	return goos == "windows"
}

// DefineNoSMP reports whether NPY_NOSMP should be defined: the variable only
// needs to be present in the environment.
func DefineNoSMP(lookup func(string) (string, bool)) bool {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	_, ok := lookup("NPY_NOSMP")
	return ok
}
