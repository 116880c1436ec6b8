package multiparter

import (
	"errors"
	"fmt"
)

// Kind classifies the failures a session reports on its own.
type Kind string

const (
	KindContentType    Kind = "ContentTypeError"
	KindFieldNameSize  Kind = "FieldNameSizeError"
	KindFieldLimit     Kind = "FieldLimitError"
	KindFileLimit      Kind = "FileLimitError"
	KindPartLimit      Kind = "PartLimitError"
	KindRequestErrored Kind = "RequestErroredError"
	KindRollback       Kind = "RollbackError"
)

// Error is a classified session failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error of the same kind, so callers can compare against the
// sentinels below regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrContentType    = &Error{Kind: KindContentType, Message: "Invalid content type."}
	ErrFieldNameSize  = &Error{Kind: KindFieldNameSize, Message: "Field name size limit reached."}
	ErrFieldLimit     = &Error{Kind: KindFieldLimit, Message: "Field limit reached."}
	ErrFileLimit      = &Error{Kind: KindFileLimit, Message: "File limit reached."}
	ErrPartLimit      = &Error{Kind: KindPartLimit, Message: "Part limit reached."}
	ErrRequestErrored = &Error{Kind: KindRequestErrored, Message: "Request errored."}
)

// RollbackError is returned when the storage adapter failed to roll back
// after the session had already failed. Both causes stay reachable through
// errors.Is and errors.As.
type RollbackError struct {
	OriginalError error
	RollbackErr   error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("Rollback failed. original: %v; rollback: %v", e.OriginalError, e.RollbackErr)
}

func (e *RollbackError) Unwrap() []error {
	return []error{e.OriginalError, e.RollbackErr}
}

// ErrorInfo is the name/message pair of one error as shown to clients.
type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ErrorBody is the client facing view of a session failure.
type ErrorBody struct {
	Name          string     `json:"name"`
	Message       string     `json:"message"`
	OriginalError *ErrorInfo `json:"originalError,omitempty"`
	RollbackError *ErrorInfo `json:"rollbackError,omitempty"`
}

// Describe builds the client facing view of err. Errors without a kind are
// named "Error".
func Describe(err error) ErrorBody {
	if err == nil {
		return ErrorBody{}
	}
	var rb *RollbackError
	if errors.As(err, &rb) {
		orig, rerr := describeOne(rb.OriginalError), describeOne(rb.RollbackErr)
		return ErrorBody{
			Name:          string(KindRollback),
			Message:       "Rollback failed.",
			OriginalError: &orig,
			RollbackError: &rerr,
		}
	}
	info := describeOne(err)
	return ErrorBody{Name: info.Name, Message: info.Message}
}

func describeOne(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Name: "Error"}
	}
	var e *Error
	if errors.As(err, &e) {
		return ErrorInfo{Name: string(e.Kind), Message: e.Message}
	}
	return ErrorInfo{Name: "Error", Message: err.Error()}
}
