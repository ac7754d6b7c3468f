package relationships

import (
	"context"
	"sync"
	"sync/atomic"
)

// Loop serializes every mutation of the relationship graph onto the goroutine
// that drives it. Fetches run on their own goroutines and hand their results
// back through Schedule; completions settle only while the driver drains the
// loop, either explicitly or while awaiting a Future.
//
// A Loop must be driven by one goroutine at a time.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	pending atomic.Int64
}

// NewLoop creates an idle loop
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Schedule queues fn to run on the driving goroutine. It is safe to call from any goroutine.
func (l *Loop) Schedule(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Drain runs queued continuations until the queue is empty and returns how many ran
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Pending returns the number of fetches that have not handed back a result yet
func (l *Loop) Pending() int {
	return int(l.pending.Load())
}

// Settle drains the loop until no fetch is in flight and nothing is queued
func (l *Loop) Settle(ctx context.Context) error {
	for {
		l.Drain()
		if l.pending.Load() == 0 && l.queued() == 0 {
			return nil
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) waitFor(ctx context.Context, done <-chan struct{}) error {
	for {
		l.Drain()
		select {
		case <-done:
			return nil
		default:
		}
		select {
		case <-done:
			return nil
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Future is the completion of an asynchronous relationship operation.
// It settles on the loop's driving goroutine.
type Future[T any] struct {
	loop      *Loop
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func()
}

func newFuture[T any](l *Loop) *Future[T] {
	return &Future[T]{loop: l, done: make(chan struct{})}
}

// Resolved returns a future that has already settled with v
func Resolved[T any](l *Loop, v T) *Future[T] {
	f := newFuture[T](l)
	f.settle(v, nil)
	return f
}

// Rejected returns a future that has already failed with err
func Rejected[T any](l *Loop, err error) *Future[T] {
	f := newFuture[T](l)
	var zero T
	f.settle(zero, err)
	return f
}

// Go runs fn on a new goroutine and settles the returned future on the loop
func Go[T any](l *Loop, fn func() (T, error)) *Future[T] {
	f := newFuture[T](l)
	l.pending.Add(1)
	go func() {
		v, err := fn()
		l.Schedule(func() {
			l.pending.Add(-1)
			f.settle(v, err)
		})
	}()
	return f
}

// Then derives a future whose value is fn applied to f's value.
// fn runs on the loop and is skipped when f fails.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	next := newFuture[U](f.loop)
	f.onSettle(func() {
		if f.err != nil {
			var zero U
			next.settle(zero, f.err)
			return
		}
		next.settle(fn(f.value))
	})
	return next
}

// Chain derives a future that follows the future returned by fn
func Chain[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	next := newFuture[U](f.loop)
	f.onSettle(func() {
		if f.err != nil {
			var zero U
			next.settle(zero, f.err)
			return
		}
		inner := fn(f.value)
		inner.onSettle(func() {
			next.settle(inner.value, inner.err)
		})
	})
	return next
}

func (f *Future[T]) settle(v T, err error) {
	if f.settled {
		return
	}
	f.settled = true
	f.value, f.err = v, err
	close(f.done)
	callbacks := f.callbacks
	f.callbacks = nil
	for _, cb := range callbacks {
		cb()
	}
}

func (f *Future[T]) onSettle(cb func()) {
	if f.settled {
		f.loop.Schedule(cb)
		return
	}
	f.callbacks = append(f.callbacks, cb)
}

// Done is closed once the future settles
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has a value or an error
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await drives the loop until the future settles or ctx is done
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if err := f.loop.waitFor(ctx, f.done); err != nil {
		var zero T
		return zero, err
	}
	return f.value, f.err
}
