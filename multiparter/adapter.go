package multiparter

import (
	"context"

	"github.com/moyoez/multiparter/types"
)

// StorageAdapter persists file parts for one session.
//
// ProcessFile may be called from several goroutines at once, and Rollback may
// run while a ProcessFile call is still in flight. Rollback must undo every
// artifact the adapter produced in the session, including one that completes
// after Rollback has started, and must be a no-op when nothing was stored.
type StorageAdapter[T any] interface {
	ProcessFile(ctx context.Context, file *types.File) (T, error)
	Rollback(ctx context.Context) error
}

// FileTransformer rewrites a file part before it is stored. The returned
// part must expose the content of the original stream so that exactly one
// reader downstream consumes it.
type FileTransformer interface {
	TransformFile(ctx context.Context, file *types.File) (*types.File, error)
}

// TransformerFunc adapts a plain function to FileTransformer.
type TransformerFunc func(ctx context.Context, file *types.File) (*types.File, error)

func (f TransformerFunc) TransformFile(ctx context.Context, file *types.File) (*types.File, error) {
	return f(ctx, file)
}

// FileFilter decides whether a file part is stored. Returning false drops
// the part silently; returning an error fails the session.
type FileFilter func(ctx context.Context, file *types.File) (bool, error)
