// Package npybuild provides the build and install helpers for the numerical
// array library: code generation builders, compiler capability probes,
// extension configuration and the post-build installer.
//
// # Builders
//
// The package includes generation builders for:
//   - ArrayAPIGen - multiarray C API header, table source and manifest
//   - UfuncAPIGen - ufunc C API header, table source and manifest
//   - FromTemplate - .src template expansion (begin/end repeat blocks)
//   - GenerateUmath - ufunc dispatch code from a definition table
//
// # Basic Usage
//
// Create a registry and run a builder by name:
//
//	registry := npybuild.NewRegistry()
//
//	env := &npybuild.Env{
//	    Vars:   map[string]string{"TEMPLATECOMSTR": "Expanding $SOURCE"},
//	    Logger: logger,
//	}
//
//	outputs, err := registry.Run(ctx, "FromTemplate", env,
//	    "build/src/loops.c", []string{"src/loops.c.src"})
//
// # Architecture
//
//	Registry
//	├── APIBuilder (KindNumpyAPI)
//	├── APIBuilder (KindUfuncAPI)
//	├── TemplateBuilder (KindTemplate)
//	└── UmathBuilder (KindUmath)
//
// Each builder implements the Builder interface and can:
//   - Emit the output paths for a target without generating anything
//   - Generate the outputs from the sources
//
// The Registry verifies that every emitted output exists once Generate
// returns, so a compiler step never runs against a missing file.
//
// # Probes
//
// Prober runs compile-only and compile-and-run checks against the configured
// C compiler. A failed probe is a negative answer, never an error to retry.
//
// # Installation
//
// Install copies the built binaries and Python sources into an IronPython
// prefix. See cmd/npyinstall.
package npybuild
