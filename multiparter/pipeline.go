package multiparter

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/moyoez/multiparter/types"
)

// process runs the pipeline of one file part and reports back to the
// session. ctx carries no cancellation: a running pipeline is never cut
// short by an abort.
func (s *Session[T]) process(ctx context.Context, f *types.File) {
	stored, keep, err := s.pipeline(ctx, f)
	if err != nil {
		FilesTotal.WithLabelValues("failed").Inc()
		s.fail(err)
	}
	s.taskDone(stored, keep && err == nil)
}

// pipeline filters, transforms and stores f. keep is false when the filter
// declined the part.
func (s *Session[T]) pipeline(ctx context.Context, f *types.File) (stored T, keep bool, err error) {
	// whatever happens the part must be read to its end
	defer f.Stream.Close()

	// a broken body fails the part with the decoder's error, not with
	// whatever a collaborator wrapped it in
	watched := &watchedStream{ReadCloser: f.Stream}
	f.Stream = watched
	defer func() {
		if serr := watched.failure(); err != nil && serr != nil {
			err = serr
		}
	}()

	if !s.checkName(f.Name) {
		return stored, false, ErrFieldNameSize
	}

	if s.cfg.filter != nil {
		accept, err := s.cfg.filter(ctx, f)
		if err != nil {
			return stored, false, err
		}
		if !accept {
			s.log.Debugf("[Session] %s: file %q (%s) declined by filter", s.id, f.Filename, f.MimeType)
			FilesTotal.WithLabelValues("discarded").Inc()
			return stored, false, f.Discard()
		}
	}

	file := f
	if s.cfg.transformer != nil {
		file, err = s.cfg.transformer.TransformFile(ctx, f)
		if err != nil {
			return stored, false, err
		}
		if file == nil {
			file = f
		}
		if file != f && file.Stream != nil && file.Stream != f.Stream {
			defer file.Stream.Close()
		}
	}

	stored, err = s.adapter.ProcessFile(ctx, file)
	if err != nil {
		return stored, false, err
	}
	FilesTotal.WithLabelValues("stored").Inc()
	s.log.Debugf("[Session] %s: stored file %q from field %q", s.id, file.Filename, file.Name)
	return stored, true, nil
}

// watchedStream remembers the first read error of a part stream.
type watchedStream struct {
	io.ReadCloser

	mu  sync.Mutex
	err error
}

func (w *watchedStream) Read(p []byte) (int, error) {
	n, err := w.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		w.mu.Lock()
		if w.err == nil {
			w.err = err
		}
		w.mu.Unlock()
	}
	return n, err
}

func (w *watchedStream) Truncated() bool {
	t, ok := w.ReadCloser.(interface{ Truncated() bool })
	return ok && t.Truncated()
}

func (w *watchedStream) failure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
