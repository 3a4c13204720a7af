package npybuild

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// Macro is a preprocessor definition passed to the compiler.
type Macro struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value,omitempty"`
}

// Info holds compile settings contributed by a dependency, such as the
// ndarray headers.
type Info struct {
	IncludeDirs  []string `yaml:"include_dirs,omitempty"`
	LibraryDirs  []string `yaml:"library_dirs,omitempty"`
	Libraries    []string `yaml:"libraries,omitempty"`
	DefineMacros []Macro  `yaml:"define_macros,omitempty"`
}

// Extension is the declarative descriptor of one native module.
//
// Libraries only lists what is known when the descriptor is declared;
// probe-dependent libraries are added by Resolve.
type Extension struct {
	Name         string   `yaml:"name"`
	Sources      []string `yaml:"sources"`
	Depends      []string `yaml:"depends,omitempty"` // glob patterns, for change detection
	IncludeDirs  []string `yaml:"include_dirs,omitempty"`
	LibraryDirs  []string `yaml:"library_dirs,omitempty"`
	Libraries    []string `yaml:"libraries,omitempty"`
	DefineMacros []Macro  `yaml:"define_macros,omitempty"`
}

// ResolvedExtension is an Extension whose libraries include the results of
// configure-time probes.
type ResolvedExtension struct {
	Extension `yaml:",inline"`
}

// ProbeResults carries the configure-time answers an extension depends on.
type ProbeResults struct {
	HasWinCrypt bool
	MathLibs    []string
}

// winCryptLibrary is linked when the platform exposes the OS crypto API.
const winCryptLibrary = "Advapi32"

// Resolve returns a finalized copy of e: its libraries followed by the math
// libraries and, when available, the crypto API library. e is not modified.
func (e *Extension) Resolve(results ProbeResults) (*ResolvedExtension, error) {
	if len(e.Sources) == 0 {
		return nil, fmt.Errorf("extension %s: %w", e.Name, ErrEmptySources)
	}

	resolved := &ResolvedExtension{Extension: e.clone()}

	libs := slices.Clone(results.MathLibs)
	if results.HasWinCrypt {
		libs = append(libs, winCryptLibrary)
	}
	resolved.Libraries = append(resolved.Libraries, libs...)

	return resolved, nil
}

func (e *Extension) clone() Extension {
	return Extension{
		Name:         e.Name,
		Sources:      slices.Clone(e.Sources),
		Depends:      slices.Clone(e.Depends),
		IncludeDirs:  slices.Clone(e.IncludeDirs),
		LibraryDirs:  slices.Clone(e.LibraryDirs),
		Libraries:    slices.Clone(e.Libraries),
		DefineMacros: slices.Clone(e.DefineMacros),
	}
}

// DependencyFiles expands the dependency globs relative to root.
//
// The result is sorted and free of duplicates. Patterns may use "**".
func (e *Extension) DependencyFiles(root string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	for _, pattern := range e.Depends {
		matches, err := doublestar.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("extension %s: depends %q: %w", e.Name, pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}

	sort.Strings(files)
	return files, nil
}

// DataFile installs Files into the Dest directory of the package.
type DataFile struct {
	Dest  string   `yaml:"dest"`
	Files []string `yaml:"files"`
}

// Configuration collects the extensions and data of one package.
type Configuration struct {
	Name          string       `yaml:"name"`
	ParentPackage string       `yaml:"parent_package,omitempty"`
	TopPath       string       `yaml:"top_path,omitempty"`
	Extensions    []*Extension `yaml:"extensions,omitempty"`
	DataFiles     []DataFile   `yaml:"data_files,omitempty"`
	DataDirs      []string     `yaml:"data_dirs,omitempty"`
}

// NewConfiguration creates a package configuration named parent.name.
func NewConfiguration(name, parentPackage, topPath string) *Configuration {
	return &Configuration{
		Name:          dotJoin(parentPackage, name),
		ParentPackage: parentPackage,
		TopPath:       topPath,
	}
}

// AddExtension declares an extension of this package and merges info into
// it. The extension name is qualified with the package name.
func (c *Configuration) AddExtension(ext Extension, info Info) (*Extension, error) {
	if len(ext.Sources) == 0 {
		return nil, fmt.Errorf("extension %s: %w", ext.Name, ErrEmptySources)
	}

	e := ext.clone()
	e.Name = dotJoin(c.Name, ext.Name)
	e.IncludeDirs = append(e.IncludeDirs, info.IncludeDirs...)
	e.LibraryDirs = append(e.LibraryDirs, info.LibraryDirs...)
	e.Libraries = append(e.Libraries, info.Libraries...)
	e.DefineMacros = append(e.DefineMacros, info.DefineMacros...)

	c.Extensions = append(c.Extensions, &e)
	return &e, nil
}

// Extension returns the extension with the given qualified or short name.
func (c *Configuration) Extension(name string) (*Extension, bool) {
	for _, e := range c.Extensions {
		if e.Name == name || e.Name == dotJoin(c.Name, name) {
			return e, true
		}
	}
	return nil, false
}

// AddDataFiles registers files to install under dest.
func (c *Configuration) AddDataFiles(dest string, files ...string) {
	c.DataFiles = append(c.DataFiles, DataFile{Dest: dest, Files: files})
}

// AddDataDir registers a directory installed recursively with the package.
func (c *Configuration) AddDataDir(dir string) {
	c.DataDirs = append(c.DataDirs, dir)
}

func dotJoin(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

// NDArrayInfo returns the compile settings for code using the ndarray headers.
func NDArrayInfo(includeDir string) Info {
	if includeDir == "" {
		return Info{}
	}
	return Info{IncludeDirs: []string{includeDir}}
}

// RandomConfiguration declares the random package and its mtrand extension.
func RandomConfiguration(parentPackage, topPath string, ndarray Info) (*Configuration, error) {
	config := NewConfiguration("random", parentPackage, topPath)

	var sources []string
	for _, name := range []string{"mtrand.c", "randomkit.c", "initarray.c", "distributions.c"} {
		sources = append(sources, filepath.Join("mtrand", name))
	}

	_, err := config.AddExtension(Extension{
		Name:    "mtrand",
		Sources: sources,
		Depends: []string{
			filepath.Join("mtrand", "*.h"),
			filepath.Join("mtrand", "*.pyx"),
			filepath.Join("mtrand", "*.pxi"),
		},
	}, ndarray)
	if err != nil {
		return nil, err
	}

	config.AddDataFiles(".", filepath.Join("mtrand", "randomkit.h"))
	config.AddDataDir("tests")

	return config, nil
}

const winCryptSource = `/* check to see if _WIN32 is defined */
int main(int argc, char *argv[])
{
#ifdef _WIN32
    return 0;
#else
    return 1;
#endif
}
`

// ProbeRandomLibraries runs the configure-time probes for mtrand: the math
// library lookup and whether the OS crypto API is present.
func ProbeRandomLibraries(ctx context.Context, prober *Prober, buildDir, goos string) (ProbeResults, error) {
	mathlibs, err := MathLibs(buildDir, goos)
	if err != nil {
		return ProbeResults{}, err
	}

	hasWinCrypt, _ := prober.TryRun(ctx, winCryptSource, ".c", prober.Libs)
	prober.result("wincrypt", hasWinCrypt)

	return ProbeResults{HasWinCrypt: hasWinCrypt, MathLibs: mathlibs}, nil
}

// MathLibs returns the math libraries recorded in buildDir/config.h by the
// core configuration (#define MATHLIB m,cpml). An empty buildDir yields the
// platform default: none on windows, libm elsewhere. A buildDir without a
// config.h is an error, since the core configuration has not run there.
func MathLibs(buildDir, goos string) ([]string, error) {
	defaults := []string{"m"}
	if goos == "windows" {
		defaults = []string{}
	}
	if buildDir == "" {
		return defaults, nil
	}

	f, err := os.Open(filepath.Join(buildDir, "config.h"))
	if err != nil {
		return nil, fmt.Errorf("math libraries: %w", err)
	}
	defer f.Close()

	libs := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "#define" || fields[1] != "MATHLIB" {
			continue
		}
		if len(fields) > 2 {
			for _, lib := range strings.Split(strings.Join(fields[2:], ""), ",") {
				if lib = strings.TrimSpace(lib); lib != "" {
					libs = append(libs, lib)
				}
			}
		}
		break
	}
	return libs, scanner.Err()
}
