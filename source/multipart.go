package source

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/moyoez/multiparter/types"
)

var (
	// ErrUnexpectedEnd is reported when the body ends before the closing boundary.
	ErrUnexpectedEnd = errors.New("Unexpected end of form")
	// ErrMalformedHeader is reported for a part carrying more header pairs than allowed.
	ErrMalformedHeader = errors.New("Malformed part header")
	// ErrNotMultipart is returned by the constructors for a body that is not multipart/form-data.
	ErrNotMultipart = errors.New("source: content type is not multipart/form-data")
	// ErrMissingBoundary is returned by the constructors when the content type carries no boundary.
	ErrMissingBoundary = errors.New("source: no multipart boundary param in Content-Type")
)

const (
	defaultEncoding = "7bit"
	defaultMimeType = "text/plain"
)

// Multipart decodes a multipart/form-data body with mime/multipart.
//
// Parts are handed out one at a time: after a file event the decoder waits
// until the consumer has read or closed that file's stream before it looks at
// the next part.
type Multipart struct {
	reader *multipart.Reader
	limits types.Limits

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// FromRequest builds a Multipart source for an incoming HTTP request.
func FromRequest(r *http.Request, limits types.Limits) (*Multipart, error) {
	if r == nil || r.Body == nil {
		return nil, ErrNotMultipart
	}
	return NewMultipart(r.Body, r.Header.Get("Content-Type"), limits)
}

// NewMultipart builds a Multipart source for body framed by contentType.
// limits are applied as given, zeros included; start from
// types.DefaultLimits to change only some of them.
func NewMultipart(body io.Reader, contentType string, limits types.Limits) (*Multipart, error) {
	if contentType == "" {
		return nil, ErrNotMultipart
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		return nil, ErrNotMultipart
	}
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return nil, ErrMissingBoundary
	}
	return &Multipart{
		reader: multipart.NewReader(body, boundary),
		limits: limits,
	}, nil
}

// Start implements Source.
func (m *Multipart) Start(ctx context.Context) <-chan Event {
	events := make(chan Event)

	m.mu.Lock()
	if m.closed || m.cancel != nil {
		m.mu.Unlock()
		close(events)
		return events
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	go m.run(ctx, events)
	return events
}

// Close implements Source.
func (m *Multipart) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *Multipart) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	var parts, fields, files int64
	var hitParts, hitFields, hitFiles bool

	for ctx.Err() == nil {
		part, err := m.reader.NextPart()
		if err == io.EOF {
			emit(ctx, events, Event{Kind: EventFinish})
			return
		}
		if err != nil {
			emit(ctx, events, Event{Kind: EventError, Err: decodeError(err)})
			return
		}

		if headerPairs(part) > m.limits.MaxHeaderPairs {
			emit(ctx, events, Event{Kind: EventError, Err: ErrMalformedHeader})
			return
		}

		if parts == m.limits.MaxParts {
			if !hitParts {
				hitParts = true
				if !emit(ctx, events, Event{Kind: EventPartsLimit}) {
					return
				}
			}
			continue
		}
		parts++

		disposition, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil || disposition != "form-data" {
			// not a form part, NextPart skips its body
			continue
		}
		name := params["name"]

		encoding := strings.ToLower(part.Header.Get("Content-Transfer-Encoding"))
		if encoding == "" {
			encoding = defaultEncoding
		}
		mimeType := defaultMimeType
		if ct := part.Header.Get("Content-Type"); ct != "" {
			if mt, _, err := mime.ParseMediaType(ct); err == nil {
				mimeType = mt
			}
		}

		if filename, isFile := params["filename"]; isFile {
			if files == m.limits.MaxFiles {
				if !hitFiles {
					hitFiles = true
					if !emit(ctx, events, Event{Kind: EventFilesLimit}) {
						return
					}
				}
				continue
			}
			files++

			stream := newPartStream(part, m.limits.MaxFileSize)
			file := &types.File{
				Name:     name,
				Stream:   stream,
				Encoding: encoding,
				MimeType: mimeType,
				Filename: filename,
			}
			if !emit(ctx, events, Event{Kind: EventFile, File: file}) {
				return
			}
			select {
			case <-stream.done:
			case <-ctx.Done():
				return
			}
			continue
		}

		if fields == m.limits.MaxFields {
			if !hitFields {
				hitFields = true
				if !emit(ctx, events, Event{Kind: EventFieldsLimit}) {
					return
				}
			}
			continue
		}
		fields++

		value, truncated, err := readField(part, m.limits.MaxFieldSize)
		if err != nil {
			emit(ctx, events, Event{Kind: EventError, Err: err})
			return
		}
		field := types.Field{Name: name, Value: value, ValueTruncated: truncated}
		if !emit(ctx, events, Event{Kind: EventField, Field: field}) {
			return
		}
	}
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func headerPairs(part *multipart.Part) int64 {
	var n int64
	for _, values := range part.Header {
		n += int64(len(values))
	}
	return n
}

// readField reads at most limit bytes of a field value and discards the rest.
func readField(part *multipart.Part, limit int64) (string, bool, error) {
	var sb strings.Builder
	if _, err := io.Copy(&sb, io.LimitReader(part, limit)); err != nil {
		return "", false, decodeError(err)
	}
	rest, err := io.Copy(io.Discard, part)
	if err != nil {
		return "", false, decodeError(err)
	}
	return sb.String(), rest > 0, nil
}

// decodeError maps a premature end of the body to ErrUnexpectedEnd and
// passes every other decoder error through untouched.
func decodeError(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ErrUnexpectedEnd
	}
	return err
}
