package npybuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// APIBuilder generates a C API surface (function pointer table) from API
// order files.
//
// One logical target X produces three artifacts:
//   - __X.h - private header with the table macros
//   - __X.c - private source holding the table
//   - X.txt - export manifest used for reproducibility checks
type APIBuilder struct {
	name  string
	kind  Kind
	table string // C name of the pointer table (PyArray_API)
	guard string // macro defined when compiling the owning module
}

// NewNumpyAPIBuilder creates the builder for the multiarray API.
func NewNumpyAPIBuilder() *APIBuilder {
	return &APIBuilder{
		name:  "ArrayAPIGen",
		kind:  KindNumpyAPI,
		table: "PyArray_API",
		guard: "_MULTIARRAYMODULE",
	}
}

// NewUfuncAPIBuilder creates the builder for the ufunc API.
func NewUfuncAPIBuilder() *APIBuilder {
	return &APIBuilder{
		name:  "UfuncAPIGen",
		kind:  KindUfuncAPI,
		table: "PyUFunc_API",
		guard: "_UMATHMODULE",
	}
}

// Name returns the builder name
func (b *APIBuilder) Name() string {
	return b.name
}

// Kind returns KindNumpyAPI or KindUfuncAPI
func (b *APIBuilder) Kind() Kind {
	return b.kind
}

// Emit derives the header, source and manifest paths from the target name.
// The sources are not consulted.
func (b *APIBuilder) Emit(target string, _ []string) ([]string, error) {
	return EmitAPIOutputs(target), nil
}

// EmitAPIOutputs maps target dir/X(.ext) to dir/__X.h, dir/__X.c, dir/X.txt.
func EmitAPIOutputs(target string) []string {
	base, _ := SplitExt(target)
	if filepath.Ext(target) == "" {
		base = target
	}
	dir := filepath.Dir(base)
	name := filepath.Base(base)

	return []string{
		filepath.Join(dir, "__"+name+".h"),
		filepath.Join(dir, "__"+name+".c"),
		base + ".txt",
	}
}

// Generate parses the API order files and writes the three artifacts.
func (b *APIBuilder) Generate(ctx context.Context, env *Env, targets, sources []string) error {
	if len(targets) != 3 {
		return fmt.Errorf("expected 3 targets (header, source, manifest), got %d", len(targets))
	}
	if len(sources) == 0 {
		return ErrEmptySources
	}

	api, err := ParseAPIFiles(sources)
	if err != nil {
		return err
	}

	header, source, manifest := targets[0], targets[1], targets[2]

	if err := checkReproducible(manifest, api); err != nil {
		return err
	}

	if err := writeFile(header, api.Header(b.table, b.guard)); err != nil {
		return err
	}
	if err := writeFile(source, api.Source(b.table)); err != nil {
		return err
	}
	if err := writeFile(manifest, api.Manifest()); err != nil {
		return err
	}

	env.logger().Debug("generated api",
		zap.String("builder", b.name),
		zap.Int("entries", len(api.Entries)),
		zap.String("digest", api.SignatureDigest()))

	return nil
}

// checkReproducible compares a manifest left by a previous run. The same
// input digest must yield the same signature digest.
func checkReproducible(manifestPath string, api *API) error {
	data, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	prev := parseManifestHeader(string(data))
	if prev.inputDigest != api.InputDigest() {
		return nil
	}
	if prev.signatureDigest != api.SignatureDigest() {
		return fmt.Errorf("%w: %s (was %s, now %s)",
			ErrNondeterministicAPI, manifestPath, prev.signatureDigest, api.SignatureDigest())
	}
	return nil
}
