// Package transformers provides FileTransformer implementations.
package transformers

import (
	"context"

	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/types"
)

// Rename rewrites the file name of every part with fn.
func Rename(fn func(filename string) string) multiparter.FileTransformer {
	return multiparter.TransformerFunc(func(_ context.Context, f *types.File) (*types.File, error) {
		out := *f
		out.Filename = fn(f.Filename)
		return &out, nil
	})
}

// Chain applies transformers in order, each one receiving the output of
// the previous. Nil entries are skipped.
func Chain(ts ...multiparter.FileTransformer) multiparter.FileTransformer {
	return multiparter.TransformerFunc(func(ctx context.Context, f *types.File) (*types.File, error) {
		var err error
		for _, t := range ts {
			if t == nil {
				continue
			}
			if f, err = t.TransformFile(ctx, f); err != nil {
				return nil, err
			}
		}
		return f, nil
	})
}
