package multiparter

import (
	"context"
	"net/http"

	"github.com/moyoez/multiparter/source"
)

// Parse runs a session over src and returns its outcome.
func Parse[T any](ctx context.Context, src source.Source, adapter StorageAdapter[T], opts ...Option) (*Result[T], error) {
	return New(src, adapter, opts...).Run(ctx)
}

// ParseRequest runs a session over the body of r, aborting when the
// request context is cancelled.
func ParseRequest[T any](r *http.Request, adapter StorageAdapter[T], opts ...Option) (*Result[T], error) {
	s, err := NewFromRequest(r, adapter, opts...)
	if err != nil {
		return nil, err
	}
	return s.Run(r.Context())
}
