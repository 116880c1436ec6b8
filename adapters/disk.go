package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/moyoez/multiparter/tool"
	"github.com/moyoez/multiparter/types"
)

const metaSuffix = ".meta"

// Disk writes every file part to its own file under a directory, next to a
// JSON sidecar (<file>.meta) holding its StoredFile.
type Disk struct {
	dir       string
	keepNames bool
	ledger    ledger
}

// DiskOption configures a Disk adapter.
type DiskOption func(*Disk)

// WithOriginalNames stores files under their sanitized client file name,
// suffixed with -2, -3, ... on collision, instead of their id.
func WithOriginalNames() DiskOption {
	return func(d *Disk) { d.keepNames = true }
}

// NewDisk creates dir if needed and returns an adapter writing into it.
func NewDisk(dir string, opts ...DiskOption) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	d := &Disk{dir: dir}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Disk) ProcessFile(ctx context.Context, file *types.File) (StoredFile, error) {
	id := tool.GenerateRandomUUID()
	f, path, err := d.create(id, file.Filename)
	if err != nil {
		return StoredFile{}, err
	}

	size, err := tool.CopyWithContext(ctx, f, file.Stream)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return StoredFile{}, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	stored := StoredFile{
		ID:        id,
		Field:     file.Name,
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		Encoding:  file.Encoding,
		Size:      size,
		Location:  path,
		Truncated: file.Truncated(),
		StoredAt:  time.Now(),
	}
	meta, err := sonic.Marshal(stored)
	if err == nil {
		err = os.WriteFile(path+metaSuffix, meta, 0o644)
	}
	if err != nil {
		_ = removeStored(path)
		return StoredFile{}, fmt.Errorf("write metadata for %s: %w", filepath.Base(path), err)
	}

	if !d.ledger.record(path) {
		_ = removeStored(path)
		return StoredFile{}, ErrRolledBack
	}
	tool.DefaultLogger.Debugf("[Disk] Stored %s (%d bytes) at %s", file.Filename, size, path)
	return stored, nil
}

func (d *Disk) create(id, filename string) (*os.File, string, error) {
	if !d.keepNames {
		path := filepath.Join(d.dir, id)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, "", fmt.Errorf("create %s: %w", id, err)
		}
		return f, path, nil
	}
	name := tool.SafeFilename(filename)
	// another pipeline may take the same name between the check and the create
	for attempt := 0; attempt < 8; attempt++ {
		path := tool.NextAvailablePath(d.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", filepath.Base(path), err)
		}
	}
	return nil, "", fmt.Errorf("create %s: too many name collisions", name)
}

// Rollback removes every file and sidecar this adapter wrote.
func (d *Disk) Rollback(context.Context) error {
	paths := d.ledger.drain()
	var errs []error
	for _, path := range paths {
		if err := removeStored(path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(paths) > 0 {
		tool.DefaultLogger.Infof("[Disk] Rolled back %d file(s) in %s", len(paths), d.dir)
	}
	return errors.Join(errs...)
}

// ReadMeta loads the sidecar written for a stored file.
func ReadMeta(path string) (StoredFile, error) {
	var stored StoredFile
	data, err := os.ReadFile(path + metaSuffix)
	if err != nil {
		return stored, err
	}
	err = sonic.Unmarshal(data, &stored)
	return stored, err
}

func removeStored(path string) error {
	var errs []error
	for _, p := range []string{path, path + metaSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
