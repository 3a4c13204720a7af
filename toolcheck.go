package npybuild

import (
	"fmt"
	"os/exec"
	"strings"
)

// execLookPath is overridden in tests.
var execLookPath = exec.LookPath

// ToolChecker is implemented by components that shell out to external tools.
//
// Consumers can verify the tools up front to fail with a clear message
// instead of a failed probe:
//
//	if err := prober.CheckTools(); err != nil {
//	    return fmt.Errorf("build tools missing: %w", err)
//	}
type ToolChecker interface {
	// RequiredTools returns the list of tools the component needs.
	RequiredTools() []ToolRequirement

	// CheckTools verifies that all required tools are available.
	// Optional tools don't cause errors if missing.
	CheckTools() error
}

// ToolRequirement describes an external tool dependency.
//
// Tool with alternatives:
//
//	ToolRequirement{
//	    Name:         "cc",
//	    Alternatives: []string{"gcc", "clang"},
//	    Purpose:      "C compiler for probes",
//	}
type ToolRequirement struct {
	// Name is the primary tool binary name (e.g., "cc", "ipy").
	Name string

	// Alternatives are tool names that also satisfy this requirement,
	// tried in order after Name.
	Alternatives []string

	// Optional tools are looked up but never cause an error.
	Optional bool

	// Purpose is a human-readable description of why this tool is needed.
	Purpose string
}

// CheckToolAvailable checks if a tool is available in the system PATH.
func CheckToolAvailable(tool string) error {
	_, err := execLookPath(tool)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", tool)
	}
	return nil
}

// FindTool returns the path of the first available tool of a requirement:
// the primary name, then each alternative.
func FindTool(req ToolRequirement) (string, error) {
	for _, name := range append([]string{req.Name}, req.Alternatives...) {
		if path, err := execLookPath(name); err == nil {
			return path, nil
		}
	}
	if req.Purpose != "" {
		return "", fmt.Errorf("%s not found in PATH (required for: %s)", req.Name, req.Purpose)
	}
	return "", fmt.Errorf("%s not found in PATH", req.Name)
}

// CheckRequiredTools verifies all required tools are available.
//
// # Error Format
//
// Single missing tool:
//
//	cc (C compiler for probes) not found in PATH
//
// Multiple missing tools:
//
//	missing required tools: cc (C compiler for probes), ipy (IronPython interpreter)
func CheckRequiredTools(requirements []ToolRequirement) error {
	var missingTools []string

	for _, req := range requirements {
		if _, err := FindTool(req); err == nil || req.Optional {
			continue
		}
		if req.Purpose != "" {
			missingTools = append(missingTools, fmt.Sprintf("%s (%s)", req.Name, req.Purpose))
		} else {
			missingTools = append(missingTools, req.Name)
		}
	}

	switch len(missingTools) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s not found in PATH", missingTools[0])
	default:
		return fmt.Errorf("missing required tools: %s", strings.Join(missingTools, ", "))
	}
}
