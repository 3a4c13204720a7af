package npybuild

import (
	"context"
	"path/filepath"
	"strings"
)

// UmathBuilder generates the ufunc dispatch code.
//
// The first source names the definition table when it is a YAML file;
// otherwise the built-in table is used and the source only marks the
// dependency.
type UmathBuilder struct{}

// Name returns the builder name
func (b *UmathBuilder) Name() string {
	return "GenerateUmath"
}

// Kind returns KindUmath
func (b *UmathBuilder) Kind() Kind {
	return KindUmath
}

// Emit appends ".c" to the target stem.
func (b *UmathBuilder) Emit(target string, _ []string) ([]string, error) {
	return []string{target + ".c"}, nil
}

// Generate renders the table and writes the code to every target.
func (b *UmathBuilder) Generate(ctx context.Context, env *Env, targets, sources []string) error {
	table, err := LoadUfuncTable(umathTablePath(sources))
	if err != nil {
		return err
	}

	code, err := MakeUmathCode(table)
	if err != nil {
		return err
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFile(target, code); err != nil {
			return err
		}
	}
	return nil
}

func umathTablePath(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	switch strings.ToLower(filepath.Ext(sources[0])) {
	case ".yaml", ".yml":
		return sources[0]
	}
	return ""
}
