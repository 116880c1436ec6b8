package multiparter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/moyoez/multiparter/source"
	"github.com/moyoez/multiparter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays a fixed list of events. With hold set it keeps the
// channel open afterwards, like a body that stopped arriving.
type scriptedSource struct {
	events []source.Event
	hold   bool

	closeOnce sync.Once
	stop      chan struct{}
	closes    atomic.Int32
}

func newScripted(hold bool, events ...source.Event) *scriptedSource {
	return &scriptedSource{events: events, hold: hold, stop: make(chan struct{})}
}

func (s *scriptedSource) Start(ctx context.Context) <-chan source.Event {
	ch := make(chan source.Event)
	go func() {
		defer close(ch)
		for _, ev := range s.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
		if s.hold {
			select {
			case <-ctx.Done():
			case <-s.stop:
			}
		}
	}()
	return ch
}

func (s *scriptedSource) Close() error {
	s.closes.Add(1)
	s.closeOnce.Do(func() { close(s.stop) })
	return nil
}

// trackedStream records whether it was read to the end and closed.
type trackedStream struct {
	r        io.Reader
	drained  atomic.Bool
	closed   atomic.Bool
	readFail error
}

func (t *trackedStream) Read(p []byte) (int, error) {
	if t.readFail != nil {
		return 0, t.readFail
	}
	n, err := t.r.Read(p)
	if err == io.EOF {
		t.drained.Store(true)
	}
	return n, err
}

func (t *trackedStream) Close() error {
	t.closed.Store(true)
	return nil
}

func fieldEvent(name, value string) source.Event {
	return source.Event{Kind: source.EventField, Field: types.Field{Name: name, Value: value}}
}

func fileEvent(name, filename, mimeType, content string) (source.Event, *trackedStream) {
	stream := &trackedStream{r: strings.NewReader(content)}
	return source.Event{Kind: source.EventFile, File: &types.File{
		Name:     name,
		Stream:   stream,
		Encoding: "7bit",
		MimeType: mimeType,
		Filename: filename,
	}}, stream
}

func finishEvent() source.Event { return source.Event{Kind: source.EventFinish} }

type storedFile struct {
	Name     string
	Filename string
	MimeType string
	Content  string
}

// recordingAdapter keeps everything in memory. A gate registered for a
// filename holds ProcessFile until the gate is closed.
type recordingAdapter struct {
	mu     sync.Mutex
	stored []storedFile
	gates  map[string]chan struct{}

	processErr  map[string]error
	rollbackErr error
	rollbacks   atomic.Int32
}

func newRecordingAdapter() *recordingAdapter {
	return &recordingAdapter{gates: map[string]chan struct{}{}, processErr: map[string]error{}}
}

func (a *recordingAdapter) gate(filename string) chan struct{} {
	ch := make(chan struct{})
	a.mu.Lock()
	a.gates[filename] = ch
	a.mu.Unlock()
	return ch
}

func (a *recordingAdapter) ProcessFile(_ context.Context, f *types.File) (storedFile, error) {
	data, err := io.ReadAll(f.Stream)
	if err != nil {
		return storedFile{}, err
	}
	a.mu.Lock()
	gate := a.gates[f.Filename]
	perr := a.processErr[f.Filename]
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if perr != nil {
		return storedFile{}, perr
	}
	sf := storedFile{Name: f.Name, Filename: f.Filename, MimeType: f.MimeType, Content: string(data)}
	a.mu.Lock()
	a.stored = append(a.stored, sf)
	a.mu.Unlock()
	return sf, nil
}

func (a *recordingAdapter) Rollback(context.Context) error {
	a.rollbacks.Add(1)
	return a.rollbackErr
}

func quiet() Option { return WithLogger(log.New(io.Discard)) }

func waitOutcome[T any](t *testing.T, s *Session[T]) (*Result[T], error) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session still %s after 5s", s.State())
	}
	return s.Wait()
}

func filesDone[T any](s *Session[T], n int) func() bool {
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.files) == n
	}
}

func TestSession_FieldsOnlyKeepArrivalOrder(t *testing.T) {
	src := newScripted(false,
		fieldEvent("foo", "bar"),
		fieldEvent("a", "1"),
		fieldEvent("b", "2"),
		finishEvent(),
	)
	adapter := newRecordingAdapter()

	s := New[storedFile](src, adapter, quiet())
	s.Start(context.Background())
	res, err := waitOutcome(t, s)
	require.NoError(t, err)

	assert.Equal(t, []types.Field{
		{Name: "foo", Value: "bar"},
		{Name: "a", Value: "1"},
		{Name: "b", Value: "2"},
	}, res.Fields)
	assert.NotNil(t, res.Files)
	assert.Empty(t, res.Files)
	assert.Equal(t, StateResolved, s.State())
	assert.Zero(t, adapter.rollbacks.Load())
	assert.Eventually(t, func() bool { return src.closes.Load() > 0 }, time.Second, 5*time.Millisecond, "source must be detached")
}

func TestSession_SingleField(t *testing.T) {
	src := newScripted(false, fieldEvent("foo", "bar"), finishEvent())

	res, err := Parse[storedFile](context.Background(), src, newRecordingAdapter(), quiet())
	require.NoError(t, err)
	assert.Equal(t, []types.Field{{Name: "foo", Value: "bar"}}, res.Fields)
	assert.Empty(t, res.Files)
}

func TestSession_FileMetadataRoundTrip(t *testing.T) {
	ev, stream := fileEvent("upload", "test.json", "application/json", `{"ok":true}`)
	src := newScripted(false, ev, finishEvent())

	res, err := Parse[storedFile](context.Background(), src, newRecordingAdapter(), quiet())
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "test.json", res.Files[0].Filename)
	assert.Equal(t, "application/json", res.Files[0].MimeType)
	assert.Equal(t, `{"ok":true}`, res.Files[0].Content)
	assert.True(t, stream.closed.Load())
}

func TestSession_FilterDeclineDrainsAndSkips(t *testing.T) {
	keep, _ := fileEvent("doc", "a.txt", "text/plain", "hello")
	drop, dropStream := fileEvent("img", "b.png", "image/png", "not really a png")
	src := newScripted(false, keep, drop, fieldEvent("foo", "bar"), finishEvent())
	adapter := newRecordingAdapter()

	onlyText := func(_ context.Context, f *types.File) (bool, error) {
		return f.MimeType == "text/plain", nil
	}
	res, err := Parse[storedFile](context.Background(), src, adapter, WithFilter(onlyText), quiet())
	require.NoError(t, err)

	require.Len(t, res.Files, 1)
	assert.Equal(t, "a.txt", res.Files[0].Filename)
	assert.True(t, dropStream.drained.Load(), "declined stream must be read to the end")
	assert.True(t, dropStream.closed.Load())
	assert.Len(t, adapter.stored, 1)
}

func TestSession_FilterErrorRejects(t *testing.T) {
	ev, _ := fileEvent("doc", "a.txt", "text/plain", "hello")
	src := newScripted(false, ev, finishEvent())
	adapter := newRecordingAdapter()
	boom := errors.New("filter exploded")

	_, err := Parse[storedFile](context.Background(), src, adapter,
		WithFilter(func(context.Context, *types.File) (bool, error) { return false, boom }), quiet())
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
}

func TestSession_TransformerRewritesPart(t *testing.T) {
	ev, _ := fileEvent("doc", "a.txt", "text/plain", "hello")
	src := newScripted(false, ev, finishEvent())

	rename := TransformerFunc(func(_ context.Context, f *types.File) (*types.File, error) {
		out := *f
		out.Filename = "foo.bar"
		return &out, nil
	})
	res, err := Parse[storedFile](context.Background(), src, newRecordingAdapter(), WithTransformer(rename), quiet())
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "foo.bar", res.Files[0].Filename)
	assert.Equal(t, "hello", res.Files[0].Content)
}

func TestSession_TransformerErrorRejects(t *testing.T) {
	ev, stream := fileEvent("doc", "a.txt", "text/plain", "hello")
	src := newScripted(false, ev, finishEvent())
	adapter := newRecordingAdapter()
	boom := errors.New("cannot transform")

	_, err := Parse[storedFile](context.Background(), src, adapter,
		WithTransformer(TransformerFunc(func(context.Context, *types.File) (*types.File, error) { return nil, boom })), quiet())
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
	assert.True(t, stream.closed.Load())
}

func TestSession_WaitsForInFlightFiles(t *testing.T) {
	ev, _ := fileEvent("doc", "slow.txt", "text/plain", "slow")
	src := newScripted(false, fieldEvent("foo", "bar"), ev, finishEvent())
	adapter := newRecordingAdapter()
	release := adapter.gate("slow.txt")

	s := New[storedFile](src, adapter, quiet())
	s.Start(context.Background())

	require.Eventually(t, func() bool { return s.State() == StateAwaitingDrain }, time.Second, 5*time.Millisecond)
	select {
	case <-s.Done():
		t.Fatal("resolved while a file was still being stored")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	res, err := waitOutcome(t, s)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "slow.txt", res.Files[0].Filename)
	assert.Equal(t, StateResolved, s.State())
}

func TestSession_FilesInCompletionOrder(t *testing.T) {
	first, _ := fileEvent("a", "first.txt", "text/plain", "1")
	second, _ := fileEvent("b", "second.txt", "text/plain", "2")
	src := newScripted(false, first, second, finishEvent())
	adapter := newRecordingAdapter()
	releaseFirst := adapter.gate("first.txt")
	releaseSecond := adapter.gate("second.txt")

	s := New[storedFile](src, adapter, quiet())
	s.Start(context.Background())

	require.Eventually(t, func() bool { return s.State() == StateAwaitingDrain }, time.Second, 5*time.Millisecond)
	close(releaseSecond)
	require.Eventually(t, filesDone(s, 1), time.Second, 5*time.Millisecond)
	close(releaseFirst)

	res, err := waitOutcome(t, s)
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "second.txt", res.Files[0].Filename)
	assert.Equal(t, "first.txt", res.Files[1].Filename)
}

func TestSession_LimitEventsReject(t *testing.T) {
	cases := []struct {
		kind source.EventKind
		want error
		name string
	}{
		{source.EventFieldsLimit, ErrFieldLimit, "FieldLimitError"},
		{source.EventFilesLimit, ErrFileLimit, "FileLimitError"},
		{source.EventPartsLimit, ErrPartLimit, "PartLimitError"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newScripted(false, fieldEvent("foo", "bar"), source.Event{Kind: tc.kind}, finishEvent())
			adapter := newRecordingAdapter()

			s := New[storedFile](src, adapter, quiet())
			s.Start(context.Background())
			res, err := waitOutcome(t, s)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.name, Describe(err).Name)
			assert.EqualValues(t, 1, adapter.rollbacks.Load())
			assert.Equal(t, StateRejected, s.State())
		})
	}
}

func TestSession_RollbackFailureWrapsBoth(t *testing.T) {
	ev, _ := fileEvent("doc", "a.txt", "text/plain", "hello")
	src := newScripted(false, ev, source.Event{Kind: source.EventPartsLimit}, finishEvent())
	adapter := newRecordingAdapter()
	adapter.rollbackErr = errors.New("disk on fire")

	_, err := Parse[storedFile](context.Background(), src, adapter, quiet())
	require.Error(t, err)

	var rb *RollbackError
	require.ErrorAs(t, err, &rb)
	assert.ErrorIs(t, rb.OriginalError, ErrPartLimit)
	assert.Equal(t, adapter.rollbackErr, rb.RollbackErr)
	assert.ErrorIs(t, err, ErrPartLimit)
	assert.ErrorIs(t, err, adapter.rollbackErr)
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
}

func TestSession_StreamErrorSurfacesVerbatim(t *testing.T) {
	decodeErr := errors.New("Unexpected end of form")
	src := newScripted(false, fieldEvent("foo", "bar"), source.Event{Kind: source.EventError, Err: decodeErr})
	adapter := newRecordingAdapter()

	_, err := Parse[storedFile](context.Background(), src, adapter, quiet())
	assert.Same(t, decodeErr, err)
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
}

func TestSession_SourceVanishingIsUnexpectedEnd(t *testing.T) {
	src := newScripted(false, fieldEvent("foo", "bar"))

	_, err := Parse[storedFile](context.Background(), src, newRecordingAdapter(), quiet())
	assert.ErrorIs(t, err, source.ErrUnexpectedEnd)
}

func TestSession_ContextCancelMidStream(t *testing.T) {
	src := newScripted(true, fieldEvent("foo", "bar"))
	adapter := newRecordingAdapter()
	ctx, cancel := context.WithCancel(context.Background())

	s := New[storedFile](src, adapter, quiet())
	s.Start(ctx)
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.fields) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	_, err := waitOutcome(t, s)
	assert.ErrorIs(t, err, ErrRequestErrored)
	assert.Equal(t, "Request errored.", err.Error())
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
	assert.NotZero(t, src.closes.Load())
}

func TestSession_AbortMidStream(t *testing.T) {
	src := newScripted(true, fieldEvent("foo", "bar"))
	adapter := newRecordingAdapter()

	s := New[storedFile](src, adapter, quiet())
	s.Start(context.Background())
	s.Abort()
	s.Abort()

	_, err := waitOutcome(t, s)
	assert.ErrorIs(t, err, ErrRequestErrored)
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
}

func TestSession_AbortWhileDrainingDoesNotWaitForPipelines(t *testing.T) {
	ev, _ := fileEvent("doc", "slow.txt", "text/plain", "slow")
	src := newScripted(false, ev, finishEvent())
	adapter := newRecordingAdapter()
	release := adapter.gate("slow.txt")

	s := New[storedFile](src, adapter, quiet())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.State() == StateAwaitingDrain }, time.Second, 5*time.Millisecond)

	s.Abort()
	_, err := waitOutcome(t, s)
	assert.ErrorIs(t, err, ErrRequestErrored)
	assert.EqualValues(t, 1, adapter.rollbacks.Load())

	close(release)
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.pending == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRejected, s.State())
	res, err := s.Wait()
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrRequestErrored)
}

func TestSession_FirstFailureWins(t *testing.T) {
	a, _ := fileEvent("a", "a.txt", "text/plain", "a")
	b, _ := fileEvent("b", "b.txt", "text/plain", "b")
	src := newScripted(false, a, b, finishEvent())
	adapter := newRecordingAdapter()
	errA, errB := errors.New("a failed"), errors.New("b failed")
	adapter.processErr["a.txt"] = errA
	adapter.processErr["b.txt"] = errB

	_, err := Parse[storedFile](context.Background(), src, adapter, quiet())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errA) || errors.Is(err, errB))
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
}

func TestSession_PipelineFailureBeforeFinish(t *testing.T) {
	a, _ := fileEvent("a", "a.txt", "text/plain", "a")
	src := newScripted(true, a)
	adapter := newRecordingAdapter()
	boom := errors.New("store failed")
	adapter.processErr["a.txt"] = boom

	_, err := Parse[storedFile](context.Background(), src, adapter, quiet())
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
	assert.NotZero(t, src.closes.Load())
}

func TestSession_OversizedFieldNameRejectedBeforeUse(t *testing.T) {
	src := newScripted(false, fieldEvent("ok", "1"), fieldEvent("toolong", "2"), finishEvent())
	adapter := newRecordingAdapter()

	s := New[storedFile](src, adapter, WithLimits(types.Limits{MaxFieldNameSize: 3}), quiet())
	s.Start(context.Background())
	_, err := waitOutcome(t, s)
	assert.ErrorIs(t, err, ErrFieldNameSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.fields, 1)
	assert.Equal(t, "ok", s.fields[0].Name)
}

func TestSession_OversizedFileNameRejects(t *testing.T) {
	ev, stream := fileEvent("a-very-long-name", "a.txt", "text/plain", "a")
	src := newScripted(false, ev, finishEvent())
	adapter := newRecordingAdapter()

	_, err := Parse[storedFile](context.Background(), src, adapter, WithLimits(types.Limits{MaxFieldNameSize: 4}), quiet())
	assert.ErrorIs(t, err, ErrFieldNameSize)
	assert.Empty(t, adapter.stored)
	assert.True(t, stream.closed.Load())
}

func TestSession_StartTwiceIsNoop(t *testing.T) {
	src := newScripted(false, fieldEvent("foo", "bar"), finishEvent())
	s := New[storedFile](src, newRecordingAdapter(), quiet())
	s.Start(context.Background())
	s.Start(context.Background())

	res, err := waitOutcome(t, s)
	require.NoError(t, err)
	assert.Len(t, res.Fields, 1)
}

func TestSession_WithID(t *testing.T) {
	s := New[storedFile](newScripted(false), newRecordingAdapter(), WithID("abc"), quiet())
	assert.Equal(t, "abc", s.ID())
	assert.Equal(t, StateInitializing, s.State())

	generated := New[storedFile](newScripted(false), newRecordingAdapter(), quiet())
	assert.NotEmpty(t, generated.ID())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaitingDrain", StateAwaitingDrain.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestOutcomeSettlesOnce(t *testing.T) {
	o := newOutcome[int]()
	assert.True(t, o.resolve(&Result[int]{Files: []int{1}}))
	assert.False(t, o.reject(errors.New("late")))
	assert.False(t, o.resolve(&Result[int]{}))

	res, err := o.wait()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Files)
}

func TestSession_StreamReadErrorRejects(t *testing.T) {
	ev, stream := fileEvent("doc", "a.txt", "text/plain", "hello")
	stream.readFail = errors.New("connection reset")
	src := newScripted(false, ev, finishEvent())
	adapter := newRecordingAdapter()

	_, err := Parse[storedFile](context.Background(), src, adapter, quiet())
	assert.ErrorIs(t, err, stream.readFail)
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
}

type wrappingAdapter struct{ *recordingAdapter }

func (a wrappingAdapter) ProcessFile(ctx context.Context, f *types.File) (storedFile, error) {
	if _, err := io.ReadAll(f.Stream); err != nil {
		return storedFile{}, fmt.Errorf("write %s: %w", f.Filename, err)
	}
	return a.recordingAdapter.ProcessFile(ctx, f)
}

func TestSession_StreamReadErrorReportedUnwrapped(t *testing.T) {
	ev, stream := fileEvent("doc", "a.txt", "text/plain", "hello")
	stream.readFail = source.ErrUnexpectedEnd
	src := newScripted(false, ev, finishEvent())
	adapter := wrappingAdapter{newRecordingAdapter()}

	_, err := Parse[storedFile](context.Background(), src, adapter, quiet())
	assert.Equal(t, source.ErrUnexpectedEnd, err)
	assert.Equal(t, "Unexpected end of form", Describe(err).Message)
	assert.EqualValues(t, 1, adapter.rollbacks.Load())
}
