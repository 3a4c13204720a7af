package npybuild

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/sh"
	"go.uber.org/zap"
)

// DefaultBinaries are the shared libraries produced by the .NET build.
var DefaultBinaries = []string{"ndarray.dll", "NpyAccessLib.dll", "NumpyDotNet.dll"}

// ConfigStub is written to <package>/__config__.py after installation.
const ConfigStub = `# this file is generated by npyinstall
__all__ = ["show"]
_config = {}
def show():
    print('Numpy for IronPython')
`

// ipyRequirement locates the IronPython interpreter when no prefix is given.
var ipyRequirement = ToolRequirement{
	Name:         "ipy",
	Alternatives: []string{"ipy64"},
	Purpose:      "IronPython interpreter (install prefix)",
}

// InstallConfig controls where Install copies files.
//
// Only BinDir and Prefix are required; the other paths derive from them:
//   - DLLDir: <Prefix>/DLLs
//   - SitePackages: <Prefix>/Lib/site-packages
//   - SourceDir: <cwd>/../../..
//   - Package: numpy
//   - Binaries: DefaultBinaries
//   - Extensions: .py
type InstallConfig struct {
	BinDir string // Directory holding the freshly built binaries
	Prefix string // Runtime installation prefix

	DLLDir       string
	SitePackages string
	SourceDir    string // Package source tree to mirror
	Package      string

	Binaries   []string
	Extensions []string

	Logger *zap.Logger
}

// InstallResult describes what Install did.
type InstallResult struct {
	Installed  []string          // Installed binary paths
	BackedUp   map[string]string // Pre-existing binary -> where it was moved
	Copied     []string          // Installed source files
	ConfigPath string
}

// NormalizeBinDir strips one trailing double quote left by some IDE
// post-build invocations.
func NormalizeBinDir(binDir string) string {
	return strings.TrimSuffix(binDir, `"`)
}

// DiscoverPrefix returns NPY_PREFIX if set, otherwise the directory of the
// IronPython interpreter found on PATH.
func DiscoverPrefix() (string, error) {
	if prefix := os.Getenv("NPY_PREFIX"); prefix != "" {
		return prefix, nil
	}
	ipy, err := FindTool(ipyRequirement)
	if err != nil {
		return "", fmt.Errorf("set NPY_PREFIX or put IronPython on PATH: %w", err)
	}
	return filepath.Dir(ipy), nil
}

func (c *InstallConfig) withDefaults() (*InstallConfig, error) {
	cfg := *c
	if cfg.BinDir == "" {
		return nil, fmt.Errorf("install: binary directory is required")
	}
	cfg.BinDir = NormalizeBinDir(cfg.BinDir)

	if cfg.Prefix == "" && (cfg.DLLDir == "" || cfg.SitePackages == "") {
		return nil, fmt.Errorf("install: prefix is required")
	}
	if cfg.DLLDir == "" {
		cfg.DLLDir = filepath.Join(cfg.Prefix, "DLLs")
	}
	if cfg.SitePackages == "" {
		cfg.SitePackages = filepath.Join(cfg.Prefix, "Lib", "site-packages")
	}
	if cfg.SourceDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.SourceDir = filepath.Join(wd, "..", "..", "..")
	}
	cfg.SourceDir = filepath.Clean(cfg.SourceDir)
	if cfg.Package == "" {
		cfg.Package = "numpy"
	}
	if len(cfg.Binaries) == 0 {
		cfg.Binaries = DefaultBinaries
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".py"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &cfg, nil
}

// Install copies the built binaries into the DLL directory, mirrors the
// package sources into site-packages and writes the config stub.
//
// A binary already present at the destination is moved into a fresh
// temporary directory first: it may still be mapped by a running process
// and could not be overwritten or deleted.
//
// The first error aborts the installation. Files copied before the error are
// left in place.
func Install(ctx context.Context, config *InstallConfig) (*InstallResult, error) {
	cfg, err := config.withDefaults()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger

	log.Info("installing",
		zap.String("bin_dir", cfg.BinDir),
		zap.String("dll_dir", cfg.DLLDir),
		zap.String("site_packages", cfg.SitePackages))

	result := &InstallResult{BackedUp: make(map[string]string)}

	if err := os.MkdirAll(cfg.DLLDir, 0o755); err != nil {
		return nil, err
	}

	for _, name := range cfg.Binaries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		src := filepath.Join(cfg.BinDir, name)
		dst := filepath.Join(cfg.DLLDir, name)

		if _, err := os.Stat(src); err != nil {
			return nil, err
		}

		backup, err := moveAside(dst)
		if err != nil {
			return nil, err
		}
		if backup != "" {
			result.BackedUp[dst] = backup
			log.Debug("moved aside", zap.String("path", dst), zap.String("backup", backup))
		}

		if err := copyFile(src, dst); err != nil {
			return nil, err
		}
		result.Installed = append(result.Installed, dst)
		log.Info("installed", zap.String("path", dst))
	}

	pkgDir := filepath.Join(cfg.SitePackages, cfg.Package)
	copied, err := mirrorSources(ctx, cfg.SourceDir, pkgDir, cfg.Extensions)
	if err != nil {
		return nil, err
	}
	result.Copied = copied
	log.Info("copied sources", zap.Int("files", len(copied)), zap.String("dest", pkgDir))

	result.ConfigPath = filepath.Join(pkgDir, "__config__.py")
	if err := writeFile(result.ConfigPath, ConfigStub); err != nil {
		return nil, err
	}

	return result, nil
}

// moveAside renames an existing regular file into a new temporary directory
// and returns its new path, or "" if there was nothing to move.
func moveAside(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}

	tmpDir, err := os.MkdirTemp("", "npyinstall")
	if err != nil {
		return "", err
	}
	backup := filepath.Join(tmpDir, filepath.Base(path))
	if err := os.Rename(path, backup); err != nil {
		return "", err
	}
	return backup, nil
}

// mirrorSources copies every file under srcRoot with a matching extension to
// the same relative path under destRoot.
func mirrorSources(ctx context.Context, srcRoot, destRoot string, extensions []string) ([]string, error) {
	var copied []string

	err := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() && filepath.Clean(path) == filepath.Clean(destRoot) {
			return filepath.SkipDir
		}
		if d.IsDir() || !MatchesExtension(d.Name(), extensions...) {
			return nil
		}

		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(destRoot, rel)
		if err := copyFile(path, dst); err != nil {
			return err
		}
		copied = append(copied, dst)
		return nil
	})

	return copied, err
}

func copyFile(srcPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return sh.Copy(destPath, srcPath)
}
