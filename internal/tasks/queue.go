package tasks

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Kind distinguishes one-shot from recurring work.
type Kind int

const (
	OneShot Kind = iota
	Recurring
)

// Task is a unit of deferred work owned by the Queue from submission on.
type Task struct {
	fn   func()
	kind Kind
	at   time.Time
	seq  uint64
}

// Queue is a cooperative run-to-completion scheduler. Tasks execute one at a
// time on the goroutine that pumps the queue (Run or RunOnce). Submission is
// safe from any goroutine; execution never is concurrent.
//
// A panicking task is not recovered: it unwinds the pump and every task still
// queued stays pending.
type Queue struct {
	mu      sync.Mutex
	pending taskHeap
	seq     uint64
	now     func() time.Time
	yield   time.Duration
	wake    chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithRecurringYield delays the re-entry of a recurring task by d after each
// run. Zero keeps recurring tasks strictly back-to-back.
func WithRecurringYield(d time.Duration) Option {
	return func(q *Queue) { q.yield = d }
}

// NewQueue creates an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		now:  time.Now,
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PostOneShotTask schedules fn to run once, no earlier than delay from now.
// There is no handle and no cancellation.
func (q *Queue) PostOneShotTask(fn func(), delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	q.push(fn, OneShot, q.now().Add(delay))
}

// PostRecurringTask schedules fn to run as soon as possible and again after
// every completion, for the lifetime of the queue.
func (q *Queue) PostRecurringTask(fn func()) {
	q.push(fn, Recurring, q.now())
}

const (
	doPending int32 = iota
	doRunning
	doAbandoned
)

// Do runs fn on the pump goroutine and waits for its result. It is how
// request handlers touch state that is owned by scheduled work. When ctx ends
// before the pump reaches fn, fn never runs and Do returns ctx.Err(); once fn
// has started, Do waits for it and returns its result.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	// state moves from pending to either running or abandoned, never both.
	// Whichever side wins decides the result the caller sees.
	var state atomic.Int32
	done := make(chan error, 1)
	q.PostOneShotTask(func() {
		if !state.CompareAndSwap(doPending, doRunning) {
			return
		}
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn()
	}, 0)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(doPending, doAbandoned) {
			return ctx.Err()
		}
		return <-done
	}
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// RunOnce executes the next due task, if any, and reports whether one ran.
func (q *Queue) RunOnce() bool {
	t := q.popDue()
	if t == nil {
		return false
	}
	t.fn()
	if t.kind == Recurring {
		q.push(t.fn, Recurring, q.now().Add(q.yield))
	}
	return true
}

// Run pumps the queue until ctx is done. Between tasks it sleeps until the
// earliest target time or until new work is posted.
func (q *Queue) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if q.RunOnce() {
			continue
		}

		wait := time.Hour
		q.mu.Lock()
		if len(q.pending) > 0 {
			wait = q.pending[0].at.Sub(q.now())
		}
		q.mu.Unlock()
		if wait <= 0 {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		case <-timer.C:
		}
	}
}

func (q *Queue) push(fn func(), kind Kind, at time.Time) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.pending, &Task{fn: fn, kind: kind, at: at, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) popDue() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 || q.pending[0].at.After(q.now()) {
		return nil
	}
	return heap.Pop(&q.pending).(*Task)
}

// taskHeap orders by target time, then by arrival.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
