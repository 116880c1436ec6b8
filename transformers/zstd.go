package transformers

import (
	"context"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/types"
)

const (
	ZstdExtension = ".zst"
	ZstdMimeType  = "application/zstd"
)

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		return enc
	},
}

// Zstd compresses the content of every part on the fly. The stored file
// gets a .zst suffix and the application/zstd mime type.
func Zstd() multiparter.FileTransformer {
	return multiparter.TransformerFunc(func(_ context.Context, f *types.File) (*types.File, error) {
		out := *f
		out.Stream = newCompressReader(f.Stream)
		out.Filename = f.Filename + ZstdExtension
		out.MimeType = ZstdMimeType
		return &out, nil
	})
}

// compressReader streams the zstd encoding of src through a pipe.
type compressReader struct {
	src  io.Reader
	pr   *io.PipeReader
	enc  *zstd.Encoder
	done chan struct{}
	once sync.Once
}

func newCompressReader(src io.Reader) *compressReader {
	pr, pw := io.Pipe()
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	enc.Reset(pw)

	cr := &compressReader{src: src, pr: pr, enc: enc, done: make(chan struct{})}
	go func() {
		defer close(cr.done)
		_, err := io.Copy(enc, src)
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			pw.CloseWithError(err)
		} else {
			pw.Close()
		}
	}()
	return cr
}

func (r *compressReader) Read(p []byte) (int, error) {
	return r.pr.Read(p)
}

// Close stops the encoder and hands it back to the pool. It does not close
// the source stream.
func (r *compressReader) Close() error {
	r.once.Do(func() {
		r.pr.Close()
		<-r.done
		zstdEncoderPool.Put(r.enc)
	})
	return nil
}

// Truncated forwards the size limit flag of the source stream.
func (r *compressReader) Truncated() bool {
	t, ok := r.src.(interface{ Truncated() bool })
	return ok && t.Truncated()
}
