package adapters

import (
	"context"
	"io"

	"github.com/moyoez/multiparter/types"
)

// BufferedFile is a file part read fully into memory.
type BufferedFile struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	Encoding  string `json:"encoding"`
	Buffer    []byte `json:"-"`
	Size      int    `json:"size"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Buffer keeps file parts in memory. There is nothing to undo on rollback.
type Buffer struct{}

func NewBuffer() *Buffer { return &Buffer{} }

func (b *Buffer) ProcessFile(_ context.Context, file *types.File) (BufferedFile, error) {
	data, err := io.ReadAll(file.Stream)
	if err != nil {
		return BufferedFile{}, err
	}
	return BufferedFile{
		Name:      file.Name,
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		Encoding:  file.Encoding,
		Buffer:    data,
		Size:      len(data),
		Truncated: file.Truncated(),
	}, nil
}

func (b *Buffer) Rollback(context.Context) error { return nil }
