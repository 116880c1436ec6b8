// Package source turns a multipart/form-data body into a stream of decoded
// part events for an upload session to consume.
package source

import (
	"context"

	"github.com/moyoez/multiparter/types"
)

// EventKind tells what a Source is reporting.
type EventKind int

const (
	EventField EventKind = iota
	EventFile
	EventFieldsLimit
	EventFilesLimit
	EventPartsLimit
	EventError
	EventFinish
)

func (k EventKind) String() string {
	switch k {
	case EventField:
		return "field"
	case EventFile:
		return "file"
	case EventFieldsLimit:
		return "fieldsLimit"
	case EventFilesLimit:
		return "filesLimit"
	case EventPartsLimit:
		return "partsLimit"
	case EventError:
		return "error"
	case EventFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Event is one thing a Source observed in the body.
// Only the member matching Kind is set.
type Event struct {
	Kind  EventKind
	Field types.Field
	File  *types.File
	Err   error
}

// Source produces the decoded parts of one request body.
type Source interface {
	// Start begins decoding. The channel is closed after EventError or
	// EventFinish has been delivered, or once ctx is cancelled.
	Start(ctx context.Context) <-chan Event

	// Close detaches the source from the body. No events are sent afterwards.
	Close() error
}
