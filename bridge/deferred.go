package bridge

import "sync"

// Deferred is the marker a handler returns when its result is not available at
// dispatch time. The dispatcher holds the response for the originating request
// until Resolve or Fail is called, without blocking the tick loop or other
// peers. The dispatcher distinguishes deferred results by shape (a concrete
// *Deferred), never by inspecting the value.
type Deferred struct {
	once sync.Once
	done chan struct{}

	result any
	err    error
}

func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Resolve completes the deferred with a result. Only the first Resolve or
// Fail takes effect.
func (d *Deferred) Resolve(result any) {
	d.once.Do(func() {
		d.result = result
		close(d.done)
	})
}

// Fail completes the deferred with a handler error.
func (d *Deferred) Fail(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
	})
}

// Done is closed once the deferred has completed.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

func (d *Deferred) outcome() (any, error) {
	return d.result, d.err
}
