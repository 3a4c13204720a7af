package npybuild

import "context"

// Builder defines the interface that all generation builders must implement.
//
// A builder is the pair of operations the orchestrator needs for one
// generation kind: an emitter that derives the output paths and a generator
// that produces them.
//
// # Builder Lifecycle
//
//  1. Emit() - Registry calls this first, to know which outputs to watch for
//  2. Generate() - Registry calls this with the emitted targets
//  3. Registry checks that every emitted target exists
//
// # Example Implementation
//
//	type StampBuilder struct{}
//
//	func (b *StampBuilder) Name() string { return "Stamp" }
//	func (b *StampBuilder) Kind() Kind   { return KindTemplate }
//
//	func (b *StampBuilder) Emit(target string, sources []string) ([]string, error) {
//	    return []string{target + ".stamp"}, nil
//	}
//
//	func (b *StampBuilder) Generate(ctx context.Context, env *Env, targets, sources []string) error {
//	    return os.WriteFile(targets[0], nil, 0o644)
//	}
//
// # Thread Safety
//
// Builder implementations should be stateless. The orchestrator may run
// independent steps in parallel.
type Builder interface {
	// Name returns the orchestrator-visible name of this builder.
	Name() string

	// Kind returns the generation kind this builder implements.
	Kind() Kind

	// Emit derives the concrete output paths for a logical target.
	//
	// Emit must be pure: it is computed from its arguments alone and never
	// touches the filesystem, since it runs before Generate.
	Emit(target string, sources []string) ([]string, error)

	// Generate produces the emitted targets from sources.
	//
	// The env is only used to format progress messages.
	Generate(ctx context.Context, env *Env, targets, sources []string) error
}
