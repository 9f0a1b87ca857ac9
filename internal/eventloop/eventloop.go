// Package eventloop implements the Event Loop (spec.md §4.H): a single
// background goroutine that serializes every native call made against a
// USB device, so components F/G/I never race each other over the same
// gousb handle.
package eventloop

import "sync"

type task struct {
	fn   func()
	done chan struct{}
}

// Loop runs posted tasks one at a time, in submission order, on its own
// goroutine.
type Loop struct {
	tasks chan task

	readyOnce sync.Once
	ready     chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// New starts the loop goroutine and returns once it has begun draining
// tasks.
func New() *Loop {
	l := &Loop{
		tasks:  make(chan task, 64),
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	go l.run()
	<-l.ready
	return l
}

func (l *Loop) run() {
	l.readyOnce.Do(func() { close(l.ready) })
	for {
		select {
		case t := <-l.tasks:
			t.fn()
			if t.done != nil {
				close(t.done)
			}
		case <-l.closed:
			return
		}
	}
}

// Post enqueues fn to run on the loop goroutine and returns immediately
// without waiting for it to run. A Post arriving after Close is silently
// dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- task{fn: fn}:
	case <-l.closed:
	}
}

// Call enqueues fn and blocks the caller until it has finished running on
// the loop goroutine. A panic inside fn propagates to the caller of Call,
// not to the loop goroutine. A Call arriving after Close returns
// immediately without running fn.
func (l *Loop) Call(fn func()) {
	done := make(chan struct{})
	var panicked any
	wrapped := func() {
		defer func() { panicked = recover() }()
		fn()
	}
	select {
	case l.tasks <- task{fn: wrapped, done: done}:
	case <-l.closed:
		return
	}
	select {
	case <-done:
	case <-l.closed:
		return
	}
	if panicked != nil {
		panic(panicked)
	}
}

// Close signals the loop goroutine to stop after its current task. It does
// not wait for in-flight Post tasks queued but not yet picked up; use Call
// for anything that must observably complete before Close returns.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.closed) })
}
