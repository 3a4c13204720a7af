package npybuild

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// runGeneration executes the standard emit, generate, verify sequence.
//
// # Process Flow
//
//  1. Reject an empty source list
//  2. Call Emit for the logical target
//  3. Log the builder's progress message, if configured
//  4. Call Generate with the emitted outputs
//  5. Stat every emitted output
//
// If any step fails, processing stops and the error is returned.
// Outputs that were produced before a failure are left in place.
func runGeneration(ctx context.Context, b Builder, env *Env, target string, sources []string) ([]string, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%s: %w", b.Name(), ErrEmptySources)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outputs, err := b.Emit(target, sources)
	if err != nil {
		return nil, fmt.Errorf("%s: emit %s: %w", b.Name(), target, err)
	}

	logProgress(env, b, outputs, sources)

	if err := b.Generate(ctx, env, outputs, sources); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	if err := verifyOutputs(outputs); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	return outputs, nil
}

func verifyOutputs(outputs []string) error {
	for _, out := range outputs {
		info, err := os.Stat(out)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: %s", ErrMissingOutput, out)
		}
	}
	return nil
}

// comStrVars maps a builder kind to the build variable holding its progress
// message format.
var comStrVars = map[Kind]string{
	KindNumpyAPI: "ARRAYAPIGENCOMSTR",
	KindUfuncAPI: "UFUNCAPIGENCOMSTR",
	KindTemplate: "TEMPLATECOMSTR",
	KindUmath:    "UMATHCOMSTR",
}

func logProgress(env *Env, b Builder, targets, sources []string) {
	log := env.logger()

	format, ok := env.lookup(comStrVars[b.Kind()])
	if !ok || format == "" {
		log.Debug("generating",
			zap.String("builder", b.Name()),
			zap.Strings("targets", targets),
			zap.Strings("sources", sources))
		return
	}

	log.Info(FormatComStr(format, env, targets, sources), zap.String("builder", b.Name()))
}
