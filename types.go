package npybuild

import (
	"errors"

	"go.uber.org/zap"
)

var (
	// ErrEmptySources is returned when a step or extension has no sources.
	ErrEmptySources = errors.New("source list must not be empty")

	// ErrMismatchedPairs is returned when target and source lists that are
	// processed pairwise have different lengths.
	ErrMismatchedPairs = errors.New("target and source lists differ in length")

	// ErrUnknownBuilder is returned by Registry lookups for unregistered names.
	ErrUnknownBuilder = errors.New("unknown builder")

	// ErrMissingOutput is returned when a generation step did not produce an
	// output it declared.
	ErrMissingOutput = errors.New("declared output was not produced")
)

// Kind identifies the generation kind implemented by a Builder.
type Kind int

const (
	KindNumpyAPI Kind = iota + 1
	KindUfuncAPI
	KindTemplate
	KindUmath
)

func (k Kind) String() string {
	switch k {
	case KindNumpyAPI:
		return "numpy-api"
	case KindUfuncAPI:
		return "ufunc-api"
	case KindTemplate:
		return "template"
	case KindUmath:
		return "umath"
	default:
		return "unknown"
	}
}

// Env is the context object passed to every generation step.
//
// Vars carries build variables. They only format progress messages
// (e.g. TEMPLATECOMSTR="Expanding $SOURCE"), never drive generation.
type Env struct {
	Vars   map[string]string
	Logger *zap.Logger
}

func (e *Env) logger() *zap.Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Env) lookup(key string) (string, bool) {
	if e == nil || e.Vars == nil {
		return "", false
	}
	v, ok := e.Vars[key]
	return v, ok
}

// BuildConfig contains the compiler configuration used by probes.
//
// It is typically loaded from npybuild.yaml with LoadBuildConfig and then
// overridden from the environment (CC, CFLAGS, LDFLAGS, LIBS).
type BuildConfig struct {
	// Compiler settings
	Compiler string   `yaml:"compiler"` // C compiler driver (cc, gcc, clang)
	CFlags   []string `yaml:"cflags"`   // Flags passed when compiling
	LDFlags  []string `yaml:"ldflags"`  // Flags passed when linking
	Libs     []string `yaml:"libs"`     // Link libraries (without -l)

	// Paths
	WorkDir  string `yaml:"work_dir"`  // Scratch directory for probe programs
	BuildDir string `yaml:"build_dir"` // Build output directory (config.h lives here)

	// Env holds build variables, e.g. the *COMSTR progress formats.
	Env map[string]string `yaml:"env"`

	Verbose bool `yaml:"verbose"`
}
