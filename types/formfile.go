package types

import "io"

// File is a file part of a multipart form as handed out by the decoder.
//
// Stream can be consumed exactly once and must always be read to the end,
// even when the file is thrown away, otherwise the decoder cannot move on to
// the next part.
type File struct {
	Name     string
	Stream   io.ReadCloser
	Encoding string
	MimeType string
	Filename string
}

// Truncated reports whether the decoder cut Stream at the file size limit.
func (f *File) Truncated() bool {
	if f == nil || f.Stream == nil {
		return false
	}
	t, ok := f.Stream.(interface{ Truncated() bool })
	return ok && t.Truncated()
}

// Discard reads the rest of Stream and closes it.
func (f *File) Discard() error {
	if f == nil || f.Stream == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, f.Stream)
	if cerr := f.Stream.Close(); err == nil {
		err = cerr
	}
	return err
}
