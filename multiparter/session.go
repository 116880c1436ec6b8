// Package multiparter drives the upload of one multipart/form-data request:
// it collects text fields, runs every file part through an optional filter
// and transformer into a storage adapter, and either resolves with all of
// them or rolls the adapter back and rejects.
package multiparter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/moyoez/multiparter/source"
	"github.com/moyoez/multiparter/types"
)

// State is the lifecycle stage of a Session.
type State int

const (
	StateInitializing State = iota
	StateParsing
	StateAwaitingDrain
	StateResolved
	StateRejecting
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateParsing:
		return "parsing"
	case StateAwaitingDrain:
		return "awaitingDrain"
	case StateResolved:
		return "resolved"
	case StateRejecting:
		return "rejecting"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is what a successful session produces. Fields keep the order they
// arrived in; Files are in the order their pipelines completed.
type Result[T any] struct {
	Fields []types.Field `json:"fields"`
	Files  []T           `json:"files"`
}

// Session is the upload of one request body.
type Session[T any] struct {
	id      string
	src     source.Source
	adapter StorageAdapter[T]
	cfg     *config
	log     *log.Logger

	mu      sync.Mutex
	state   State
	pending int
	fields  []types.Field
	files   []T
	ctx     context.Context
	started time.Time

	abortOnce sync.Once
	abort     chan struct{}
	out       *outcome[T]
}

// New creates a session reading parts from src and storing files with adapter.
func New[T any](src source.Source, adapter StorageAdapter[T], opts ...Option) *Session[T] {
	return newSession(src, adapter, newConfig(opts))
}

func newSession[T any](src source.Source, adapter StorageAdapter[T], cfg *config) *Session[T] {
	return &Session[T]{
		id:      cfg.id,
		src:     src,
		adapter: adapter,
		cfg:     cfg,
		log:     cfg.logger,
		state:   StateInitializing,
		abort:   make(chan struct{}),
		out:     newOutcome[T](),
	}
}

// NewFromRequest creates a session for the body of r. It fails with
// ErrContentType when r does not carry a multipart/form-data body with a
// boundary.
func NewFromRequest[T any](r *http.Request, adapter StorageAdapter[T], opts ...Option) (*Session[T], error) {
	cfg := newConfig(opts)
	src, err := source.FromRequest(r, cfg.limits)
	if err != nil {
		SessionErrors.WithLabelValues(string(KindContentType)).Inc()
		return nil, ErrContentType
	}
	return newSession(src, adapter, cfg), nil
}

// ID returns the session id.
func (s *Session[T]) ID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Session[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins consuming the source. Cancelling ctx aborts the session with
// ErrRequestErrored. Calls after the first are no-ops.
func (s *Session[T]) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return
	}
	s.state = StateParsing
	s.ctx = ctx
	s.started = time.Now()
	s.mu.Unlock()

	s.log.Debugf("[Session] %s: parsing started", s.id)
	go s.dispatch(ctx)
}

// Wait blocks until the session has resolved or rejected and returns its
// outcome. It never returns before Start has been called.
func (s *Session[T]) Wait() (*Result[T], error) {
	return s.out.wait()
}

// Done is closed once the outcome is available.
func (s *Session[T]) Done() <-chan struct{} {
	return s.out.done
}

// Run starts the session and waits for its outcome.
func (s *Session[T]) Run(ctx context.Context) (*Result[T], error) {
	s.Start(ctx)
	return s.Wait()
}

// Abort rejects the session with ErrRequestErrored as if the client had
// gone away. It has no effect once the session is settled.
func (s *Session[T]) Abort() {
	s.abortOnce.Do(func() { close(s.abort) })
}

func (s *Session[T]) dispatch(ctx context.Context) {
	defer s.src.Close()

	events := s.src.Start(ctx)
	for {
		select {
		case <-s.out.done:
			return
		case <-ctx.Done():
			s.fail(ErrRequestErrored)
			return
		case <-s.abort:
			s.fail(ErrRequestErrored)
			return
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					s.fail(ErrRequestErrored)
				} else {
					s.fail(source.ErrUnexpectedEnd)
				}
				return
			}
			if !s.handle(ctx, ev) {
				return
			}
			if ev.Kind == source.EventFinish {
				// the source is done; keep watching for an abort while
				// pipelines drain
				events = nil
			}
		}
	}
}

// handle reacts to one source event and reports whether dispatch goes on.
func (s *Session[T]) handle(ctx context.Context, ev source.Event) bool {
	switch ev.Kind {
	case source.EventField:
		return s.handleField(ev.Field)
	case source.EventFile:
		return s.handleFile(ctx, ev.File)
	case source.EventFieldsLimit:
		s.fail(ErrFieldLimit)
	case source.EventFilesLimit:
		s.fail(ErrFileLimit)
	case source.EventPartsLimit:
		s.fail(ErrPartLimit)
	case source.EventError:
		if ctx.Err() != nil {
			// a client going away also breaks the body read
			s.fail(ErrRequestErrored)
		} else {
			s.fail(ev.Err)
		}
	case source.EventFinish:
		s.finish()
		return true
	}
	return false
}

func (s *Session[T]) handleField(f types.Field) bool {
	if !s.checkName(f.Name) {
		s.fail(ErrFieldNameSize)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateParsing {
		return false
	}
	s.fields = append(s.fields, f)
	return true
}

func (s *Session[T]) handleFile(ctx context.Context, f *types.File) bool {
	if !s.taskStarted() {
		// the source is detached by now, nobody waits for this stream
		return false
	}
	go s.process(context.WithoutCancel(ctx), f)
	return true
}

func (s *Session[T]) checkName(name string) bool {
	return int64(len(name)) <= s.cfg.limits.MaxFieldNameSize
}

// taskStarted registers a file pipeline. It refuses once the session has
// stopped accepting parts.
func (s *Session[T]) taskStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateParsing {
		return false
	}
	s.pending++
	FilesInFlight.Inc()
	return true
}

// taskDone unregisters a file pipeline, records its output and resolves the
// session when it was the last one running after the source finished.
func (s *Session[T]) taskDone(stored T, keep bool) {
	s.mu.Lock()
	s.pending--
	FilesInFlight.Dec()
	if keep && (s.state == StateParsing || s.state == StateAwaitingDrain) {
		s.files = append(s.files, stored)
	}
	if s.state != StateAwaitingDrain || s.pending > 0 {
		s.mu.Unlock()
		return
	}
	s.state = StateResolved
	result := s.snapshot()
	s.mu.Unlock()

	s.resolve(result)
}

// finish handles the end of the form. With pipelines still running the
// session waits for the last one to call taskDone.
func (s *Session[T]) finish() {
	s.mu.Lock()
	if s.state != StateParsing {
		s.mu.Unlock()
		return
	}
	if s.pending > 0 {
		s.state = StateAwaitingDrain
		s.log.Debugf("[Session] %s: form finished, waiting for %d file(s)", s.id, s.pending)
		s.mu.Unlock()
		return
	}
	s.state = StateResolved
	result := s.snapshot()
	s.mu.Unlock()

	s.resolve(result)
}

// snapshot must be called with mu held.
func (s *Session[T]) snapshot() *Result[T] {
	r := &Result[T]{
		Fields: make([]types.Field, len(s.fields)),
		Files:  make([]T, len(s.files)),
	}
	copy(r.Fields, s.fields)
	copy(r.Files, s.files)
	return r
}

func (s *Session[T]) resolve(r *Result[T]) {
	if !s.out.resolve(r) {
		return
	}
	SessionsTotal.WithLabelValues("resolved").Inc()
	SessionDuration.WithLabelValues("resolved").Observe(time.Since(s.started).Seconds())
	s.log.Infof("[Session] %s: resolved with %d field(s) and %d file(s)", s.id, len(r.Fields), len(r.Files))
}

// fail rejects the session with err. Only the first call does anything: it
// detaches the source, rolls the adapter back and publishes the outcome.
// In-flight pipelines are left running.
func (s *Session[T]) fail(err error) {
	s.mu.Lock()
	if s.state != StateParsing && s.state != StateAwaitingDrain {
		s.mu.Unlock()
		if err != nil && !errors.Is(err, ErrRequestErrored) {
			s.log.Debugf("[Session] %s: ignoring error after settle: %v", s.id, err)
		}
		return
	}
	s.state = StateRejecting
	ctx := context.WithoutCancel(s.ctx)
	s.mu.Unlock()

	s.log.Warnf("[Session] %s: upload failed: %v", s.id, err)
	_ = s.src.Close()

	final := err
	if rerr := s.adapter.Rollback(ctx); rerr != nil {
		RollbacksTotal.WithLabelValues("failed").Inc()
		s.log.Errorf("[Session] %s: rollback failed: %v", s.id, rerr)
		final = &RollbackError{OriginalError: err, RollbackErr: rerr}
	} else {
		RollbacksTotal.WithLabelValues("ok").Inc()
	}

	s.mu.Lock()
	s.state = StateRejected
	s.mu.Unlock()

	if s.out.reject(final) {
		SessionsTotal.WithLabelValues("rejected").Inc()
		SessionErrors.WithLabelValues(Describe(final).Name).Inc()
		SessionDuration.WithLabelValues("rejected").Observe(time.Since(s.started).Seconds())
	}
}
