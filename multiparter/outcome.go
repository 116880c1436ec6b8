package multiparter

import "sync"

// outcome is a write-once cell holding the terminal result of a session.
// Only the first resolve or reject takes effect.
type outcome[T any] struct {
	once   sync.Once
	done   chan struct{}
	result *Result[T]
	err    error
}

func newOutcome[T any]() *outcome[T] {
	return &outcome[T]{done: make(chan struct{})}
}

func (o *outcome[T]) resolve(r *Result[T]) bool { return o.set(r, nil) }

func (o *outcome[T]) reject(err error) bool { return o.set(nil, err) }

func (o *outcome[T]) set(r *Result[T], err error) (ok bool) {
	o.once.Do(func() {
		o.result, o.err = r, err
		close(o.done)
		ok = true
	})
	return ok
}

func (o *outcome[T]) wait() (*Result[T], error) {
	<-o.done
	return o.result, o.err
}
