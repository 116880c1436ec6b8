package source

import (
	"io"
	"sync"
)

// partStream is the content stream of one file part. It stops at the file
// size limit (a negative limit means none) and signals done once the part
// has been consumed.
type partStream struct {
	mu        sync.Mutex
	r         io.Reader
	limit     int64
	read      int64
	truncated bool
	finished  bool
	err       error

	once sync.Once
	done chan struct{}
}

func newPartStream(r io.Reader, limit int64) *partStream {
	return &partStream{
		r:     r,
		limit: limit,
		done:  make(chan struct{}),
	}
}

func (s *partStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return 0, s.readErr()
	}
	if len(p) == 0 {
		return 0, nil
	}

	if s.limit >= 0 {
		remaining := s.limit - s.read
		if remaining <= 0 {
			n, err := io.Copy(io.Discard, s.r)
			if n > 0 {
				s.truncated = true
			}
			s.finish(err)
			return 0, s.readErr()
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}

	n, err := s.r.Read(p)
	s.read += int64(n)
	if err != nil {
		if err == io.EOF {
			s.finish(nil)
		} else {
			s.finish(err)
		}
		return n, s.readErr()
	}
	return n, nil
}

// Close discards whatever is left of the part.
func (s *partStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return nil
	}
	n, err := io.Copy(io.Discard, s.r)
	if s.limit >= 0 && s.read+n > s.limit {
		s.truncated = true
	}
	s.read += n
	s.finish(err)
	return s.err
}

// Truncated reports whether bytes beyond the file size limit were dropped.
func (s *partStream) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}

func (s *partStream) finish(err error) {
	s.finished = true
	if err != nil {
		s.err = decodeError(err)
	}
	s.once.Do(func() { close(s.done) })
}

func (s *partStream) readErr() error {
	if s.err != nil {
		return s.err
	}
	return io.EOF
}
