package npybuild

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// MatchesExtension checks if a filename has any of the given extensions.
//
// This is a case-insensitive check for file extensions, with or without the
// leading dot. The installer uses it to select the Python sources to copy.
//
// # Example
//
//	if MatchesExtension(filename, ".py") {
//	    // copy it
//	}
func MatchesExtension(filename string, extensions ...string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// SplitExt splits a path at its last dot.
//
// Unlike filepath.Ext the dot is not kept, and a name without a dot yields an
// empty extension: "foo.bar.in" -> ("foo.bar", "in"), "foo" -> ("foo", "").
func SplitExt(name string) (base, ext string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// BuildError creates a standardized build error with output context.
//
// This helper formats probe and generation errors consistently, including
// the compiler output for debugging.
//
// # Format
//
// With error and output:
//
//	cc build failed: exit status 1
//
//	Build output:
//	conftest.c:4:1: error: unknown type name 'die'
//
// With output but no error:
//
//	cc build failed
//
//	Build output:
//	... output lines ...
func BuildError(builder string, output []string, err error) error {
	outputStr := strings.TrimSpace(strings.Join(output, "\n"))

	var prefix string
	if err != nil {
		prefix = fmt.Sprintf("%s build failed: %v", builder, err)
	} else {
		prefix = fmt.Sprintf("%s build failed", builder)
	}

	if outputStr != "" {
		return fmt.Errorf("%s\n\nBuild output:\n%s", prefix, outputStr)
	}

	return fmt.Errorf("%s", prefix)
}

// FormatComStr expands a progress message format.
//
// $TARGET and $SOURCE expand to the first target and source, $TARGETS and
// $SOURCES to the space separated lists. Other names resolve against the env
// variables and then the process environment.
func FormatComStr(format string, env *Env, targets, sources []string) string {
	return os.Expand(format, func(key string) string {
		switch key {
		case "TARGET":
			return first(targets)
		case "TARGETS":
			return strings.Join(targets, " ")
		case "SOURCE":
			return first(sources)
		case "SOURCES":
			return strings.Join(sources, " ")
		}
		if v, ok := env.lookup(key); ok {
			return v
		}
		return os.Getenv(key)
	})
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// writeFile writes content to path, creating the parent directory.
func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func appendUnique(values []string, extra ...string) []string {
	out := append([]string{}, values...)
	for _, v := range extra {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
