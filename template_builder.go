package npybuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// TemplateBuilder expands .src templates into compilable sources.
//
// The output lands next to the target file: for target "build/src/loops.c"
// and source "src/loops.c.src" it is "build/src/loops.c", the source base
// name minus its last extension segment.
type TemplateBuilder struct{}

// Name returns the builder name
func (b *TemplateBuilder) Name() string {
	return "FromTemplate"
}

// Kind returns KindTemplate
func (b *TemplateBuilder) Kind() Kind {
	return KindTemplate
}

// Emit places the first source, minus its last extension, in the directory
// of the target.
func (b *TemplateBuilder) Emit(target string, sources []string) ([]string, error) {
	if len(sources) == 0 {
		return nil, ErrEmptySources
	}
	return []string{TemplateOutputPath(target, sources[0])}, nil
}

// TemplateOutputPath returns dir(target)/strip_last_ext(base(source)).
func TemplateOutputPath(target, source string) string {
	base, _ := SplitExt(filepath.Base(source))
	return filepath.Join(filepath.Dir(target), base)
}

// Generate expands each (target, source) pair in lock-step.
func (b *TemplateBuilder) Generate(ctx context.Context, env *Env, targets, sources []string) error {
	if len(targets) != len(sources) {
		return fmt.Errorf("%w (%d targets, %d sources)", ErrMismatchedPairs, len(targets), len(sources))
	}

	for i := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := expandTemplateFile(targets[i], sources[i]); err != nil {
			return err
		}
	}
	return nil
}

func expandTemplateFile(target, source string) error {
	content, err := os.ReadFile(source)
	if err != nil {
		return err
	}

	expanded, err := ProcessTemplate(string(content))
	if err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}

	return writeFile(target, expanded)
}
