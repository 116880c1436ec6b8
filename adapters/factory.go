package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/types"
)

// Factory builds a fresh adapter for each session. Clients are shared,
// rollback bookkeeping is not.
type Factory[T any] func() (multiparter.StorageAdapter[T], error)

// NewFactory returns the Factory for the configured backend: disk, s3 or azure.
func NewFactory(ctx context.Context, cfg types.StorageConfig) (Factory[StoredFile], error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "disk":
		dir := cfg.Dir
		if dir == "" {
			dir = "uploads"
		}
		if _, err := NewDisk(dir); err != nil {
			return nil, err
		}
		return func() (multiparter.StorageAdapter[StoredFile], error) {
			return NewDisk(dir)
		}, nil
	case "s3":
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return func() (multiparter.StorageAdapter[StoredFile], error) {
			return NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
		}, nil
	case "azure":
		client, err := NewAzureClient(cfg.Azure)
		if err != nil {
			return nil, err
		}
		return func() (multiparter.StorageAdapter[StoredFile], error) {
			return NewAzureBlob(client, cfg.Azure.Container, cfg.Azure.Prefix), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
