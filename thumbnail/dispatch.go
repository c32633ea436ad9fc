package thumbnail

import "sync"

// Dispatcher runs completion work on the context callers expect results on.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatchFunc adapts a function to Dispatcher
type DispatchFunc func(fn func())

func (f DispatchFunc) Dispatch(fn func()) { f(fn) }

// Inline runs work on whichever goroutine dispatches it
var Inline Dispatcher = DispatchFunc(func(fn func()) { fn() })

// MainQueue is a serial queue drained by the goroutine that calls Run,
// typically main. Work dispatched after Stop runs inline on the
// dispatching goroutine, so completions are never lost.
type MainQueue struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func NewMainQueue() *MainQueue {
	return &MainQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Dispatch enqueues fn without blocking, or runs it inline once the queue is stopped
func (q *MainQueue) Dispatch(fn func()) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		fn()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run executes queued work in order on the calling goroutine until Stop.
func (q *MainQueue) Run() {
	for {
		for _, fn := range q.drain() {
			fn()
		}
		select {
		case <-q.wake:
		case <-q.done:
			// finish anything queued before the stop
			for _, fn := range q.drain() {
				fn()
			}
			return
		}
	}
}

// Stop makes Run return once already queued work has executed
func (q *MainQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	close(q.done)
}

func (q *MainQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	fns := q.pending
	q.pending = nil
	return fns
}
