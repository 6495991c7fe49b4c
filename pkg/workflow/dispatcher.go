package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Dispatcher serializes execution of work items. SyncDispatcher runs work
// inline on the calling goroutine; AsyncDispatcher hands work to a single
// background goroutine, matching the cooperative (non-preemptive)
// scheduling model from spec.md §5: suspensions occur only at provider I/O
// and user-prompt boundaries, never mid-mutation.
type Dispatcher interface {
	// Go schedules fn to run. SyncDispatcher runs it before returning;
	// AsyncDispatcher enqueues it for the dispatcher goroutine.
	Go(fn func())
}

// SyncDispatcher runs every scheduled function to completion on the calling
// goroutine before Go returns.
type SyncDispatcher struct{}

// Go implements Dispatcher by running fn inline.
func (SyncDispatcher) Go(fn func()) { fn() }

// AsyncDispatcher runs scheduled functions one at a time on a single
// background goroutine. Order of execution matches order of submission.
type AsyncDispatcher struct {
	tasks  chan func()
	stop   chan struct{}
	once   sync.Once
	closed chan struct{}
}

// NewAsyncDispatcher starts the background dispatcher goroutine. Call Close
// to stop it; pending tasks submitted before Close are still run.
func NewAsyncDispatcher() *AsyncDispatcher {
	d := &AsyncDispatcher{
		tasks:  make(chan func(), 64),
		stop:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *AsyncDispatcher) loop() {
	defer close(d.closed)
	for {
		select {
		case fn := <-d.tasks:
			fn()
		case <-d.stop:
			// Drain any already-queued work before exiting so a Close
			// racing with a Go call doesn't silently drop it.
			for {
				select {
				case fn := <-d.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Go enqueues fn for the dispatcher goroutine.
func (d *AsyncDispatcher) Go(fn func()) {
	select {
	case d.tasks <- fn:
	case <-d.stop:
	}
}

// Close stops the dispatcher goroutine after draining queued work.
func (d *AsyncDispatcher) Close() {
	d.once.Do(func() { close(d.stop) })
	<-d.closed
}

// Future is a handle to a Result[T] produced asynchronously on a Dispatcher.
type Future[T any] struct {
	done   chan struct{}
	result Result[T]
}

// Submit schedules fn on d and returns a Future that resolves once fn
// completes. On SyncDispatcher, fn has already run by the time Submit
// returns and Await resolves immediately.
func Submit[T any](d Dispatcher, fn func() Result[T]) *Future[T] {
	fut := &Future[T]{done: make(chan struct{})}
	d.Go(func() {
		fut.result = fn()
		close(fut.done)
	})
	return fut
}

// Await blocks until the Future resolves or ctx is cancelled, whichever
// comes first. A context cancellation yields a Result carrying ctx.Err(),
// not the eventual fn result (which may still complete on the dispatcher).
func (f *Future[T]) Await(ctx context.Context) Result[T] {
	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		return Err[T](ctx.Err())
	}
}

// CancelToken is an explicit, value-typed cancellation handle threaded
// through asynchronous operations, in place of the ambient cancellation a
// coroutine framework would provide implicitly.
type CancelToken struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancelToken derives a cancellable token from a parent context.
func NewCancelToken(parent context.Context) CancelToken {
	ctx, cancel := context.WithCancel(parent)
	return CancelToken{id: uuid.NewString(), ctx: ctx, cancel: cancel}
}

// ID returns the token's unique identifier, useful for correlating log
// lines across a suspended pipeline.
func (t CancelToken) ID() string { return t.id }

// Context returns the token's context, cancelled when Cancel is called or
// the parent context is done.
func (t CancelToken) Context() context.Context { return t.ctx }

// Cancelled reports whether the token has been cancelled.
func (t CancelToken) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Cancel cancels the token, causing in-flight operations observing it to
// unwind with ziperr.Cancelled.
func (t CancelToken) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Deadline wraps a CancelToken with an absolute time limit; reaching it
// should surface as ziperr.Timeout rather than ziperr.Cancelled so callers
// can distinguish explicit cancellation from a budget being exceeded.
type Deadline struct {
	CancelToken
	timedOut *bool
}

// NewDeadline derives a token that cancels itself when d elapses.
func NewDeadline(parent context.Context, d func() context.Context) Deadline {
	// d is invoked to obtain a context.Context with a deadline already
	// attached (context.WithDeadline/WithTimeout); kept as a factory so
	// callers control the time source.
	ctx := d()
	child, cancel := context.WithCancel(ctx)
	timedOut := new(bool)
	go func() {
		<-child.Done()
		if ctx.Err() != nil {
			*timedOut = true
		}
	}()
	return Deadline{CancelToken: CancelToken{id: uuid.NewString(), ctx: child, cancel: cancel}, timedOut: timedOut}
}

// TimedOut reports whether the deadline (as opposed to an explicit Cancel)
// caused this token to be done.
func (d Deadline) TimedOut() bool {
	select {
	case <-d.ctx.Done():
		return *d.timedOut
	default:
		return false
	}
}
