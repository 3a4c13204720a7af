package npybuild

import (
	"context"
	"fmt"
	"sort"
)

// Registry manages the registration and lookup of generation builders.
//
// The registry maps orchestrator-visible names to Builder implementations
// and provides methods to:
//   - Register new builders under a distinct name
//   - Look up a builder by name
//   - Run a builder: emit, generate, then verify outputs
//
// # Usage
//
// Create a registry with all standard builders:
//
//	registry := npybuild.NewRegistry()
//
// Or create an empty registry and register custom builders:
//
//	registry := &npybuild.Registry{}
//	err := registry.Register(&MyBuilder{})
//
// # Thread Safety
//
// Registry is NOT thread-safe for registration.
// Register all builders before concurrent use.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry creates a registry with the standard builders registered:
//  1. ArrayAPIGen - multiarray API (KindNumpyAPI)
//  2. UfuncAPIGen - ufunc API (KindUfuncAPI)
//  3. FromTemplate - template expansion (KindTemplate)
//  4. GenerateUmath - ufunc dispatch code (KindUmath)
func NewRegistry() *Registry {
	registry := &Registry{}

	for _, b := range []Builder{
		NewNumpyAPIBuilder(),
		NewUfuncAPIBuilder(),
		&TemplateBuilder{},
		&UmathBuilder{},
	} {
		// Names are distinct constants, registration cannot fail here.
		_ = registry.Register(b)
	}

	return registry
}

// Register adds a builder under its Name.
//
// Registering two builders with the same name is an error.
func (r *Registry) Register(builder Builder) error {
	if r.builders == nil {
		r.builders = make(map[string]Builder)
	}

	name := builder.Name()
	if _, exists := r.builders[name]; exists {
		return fmt.Errorf("builder %q already registered", name)
	}

	r.builders[name] = builder
	return nil
}

// Lookup returns the builder registered under name.
func (r *Registry) Lookup(name string) (Builder, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuilder, name)
	}
	return builder, nil
}

// Names returns the registered builder names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Emit derives the outputs of the named builder without generating them.
func (r *Registry) Emit(name, target string, sources []string) ([]string, error) {
	builder, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return builder.Emit(target, sources)
}

// Run executes the named builder for one logical target.
//
// Returns the emitted outputs, all of which exist on success.
func (r *Registry) Run(ctx context.Context, name string, env *Env, target string, sources []string) ([]string, error) {
	builder, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return runGeneration(ctx, builder, env, target, sources)
}

// RunPairs executes a pairwise builder (FromTemplate) over matching targets
// and sources, one generation per pair.
//
// Processing stops at the first failure.
func (r *Registry) RunPairs(ctx context.Context, name string, env *Env, targets, sources []string) ([]string, error) {
	if len(targets) != len(sources) {
		return nil, fmt.Errorf("%s: %w (%d targets, %d sources)", name, ErrMismatchedPairs, len(targets), len(sources))
	}

	var outputs []string
	for i := range targets {
		out, err := r.Run(ctx, name, env, targets[i], sources[i:i+1])
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, out...)
	}
	return outputs, nil
}
