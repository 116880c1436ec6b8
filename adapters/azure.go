package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/moyoez/multiparter/tool"
	"github.com/moyoez/multiparter/types"
)

// BlobAPI is the part of *azblob.Client the AzureBlob adapter uses.
type BlobAPI interface {
	UploadStream(ctx context.Context, containerName, blobName string, body io.Reader, o *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error)
	DeleteBlob(ctx context.Context, containerName, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
}

// AzureBlob stores file parts as block blobs under <prefix><id> in one container.
type AzureBlob struct {
	client    BlobAPI
	container string
	prefix    string
	ledger    ledger
}

// NewAzureClient builds a blob client from a connection string, or from a
// SAS account URL when no connection string is set.
func NewAzureClient(cfg types.AzureConfig) (*azblob.Client, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("container required for Azure storage")
	}
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("create blob client: %w", err)
		}
		return client, nil
	}
	if cfg.AccountURL == "" {
		return nil, fmt.Errorf("accountURL or connectionString required for Azure storage")
	}
	client, err := azblob.NewClientWithNoCredential(cfg.AccountURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return client, nil
}

// NewAzureBlob returns an adapter writing into container through client.
func NewAzureBlob(client BlobAPI, container, prefix string) *AzureBlob {
	return &AzureBlob{client: client, container: container, prefix: prefix}
}

func (a *AzureBlob) ProcessFile(ctx context.Context, file *types.File) (StoredFile, error) {
	id := tool.GenerateRandomUUID()
	name := a.prefix + id

	counter := &countingReader{r: file.Stream}
	_, err := a.client.UploadStream(ctx, a.container, name, counter, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(file.MimeType)},
		Metadata: map[string]*string{
			"filename": to.Ptr(url.PathEscape(file.Filename)),
			"field":    to.Ptr(url.PathEscape(file.Name)),
		},
	})
	if err != nil {
		return StoredFile{}, fmt.Errorf("upload blob: %w", err)
	}

	if !a.ledger.record(name) {
		if _, err := a.client.DeleteBlob(ctx, a.container, name, nil); err != nil {
			tool.DefaultLogger.Warnf("[Azure] Failed to remove late blob %s: %v", name, err)
		}
		return StoredFile{}, ErrRolledBack
	}
	tool.DefaultLogger.Debugf("[Azure] Stored %s as %s/%s", file.Filename, a.container, name)
	return StoredFile{
		ID:        id,
		Field:     file.Name,
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		Encoding:  file.Encoding,
		Size:      counter.n,
		Location:  a.container + "/" + name,
		Truncated: file.Truncated(),
		StoredAt:  time.Now(),
	}, nil
}

// Rollback deletes every blob this adapter uploaded.
func (a *AzureBlob) Rollback(ctx context.Context) error {
	names := a.ledger.drain()
	var errs []error
	for _, name := range names {
		if _, err := a.client.DeleteBlob(ctx, a.container, name, nil); err != nil {
			errs = append(errs, fmt.Errorf("delete blob %s: %w", name, err))
		}
	}
	if len(names) > 0 {
		tool.DefaultLogger.Infof("[Azure] Rolled back %d blob(s) in %s", len(names), a.container)
	}
	return errors.Join(errs...)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
