package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func drain(q *Queue, max int) int {
	n := 0
	for n < max && q.RunOnce() {
		n++
	}
	return n
}

func TestOneShotNotBeforeDelay(t *testing.T) {
	clk := newFakeClock()
	q := NewQueue(WithClock(clk.Now))

	ran := 0
	q.PostOneShotTask(func() { ran++ }, 100*time.Millisecond)

	if q.RunOnce() {
		t.Fatal("task ran before its delay")
	}
	clk.Advance(99 * time.Millisecond)
	if q.RunOnce() {
		t.Fatal("task ran 1ms early")
	}
	clk.Advance(time.Millisecond)
	if !q.RunOnce() {
		t.Fatal("task did not run at its target time")
	}
	if ran != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
	if q.Len() != 0 {
		t.Fatalf("one-shot task still queued: Len = %d", q.Len())
	}
	if q.RunOnce() {
		t.Fatal("one-shot task ran twice")
	}
}

func TestRecurringReentersQueue(t *testing.T) {
	clk := newFakeClock()
	q := NewQueue(WithClock(clk.Now))

	calls := 0
	q.PostRecurringTask(func() { calls++ })

	for i := 0; i < 5; i++ {
		if !q.RunOnce() {
			t.Fatalf("recurring task not eligible on pass %d", i)
		}
	}
	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
}

func TestRecurringYieldDelaysReentry(t *testing.T) {
	clk := newFakeClock()
	q := NewQueue(WithClock(clk.Now), WithRecurringYield(5*time.Millisecond))

	calls := 0
	q.PostRecurringTask(func() { calls++ })
	q.RunOnce()
	if q.RunOnce() {
		t.Fatal("recurring task re-ran inside its yield")
	}
	clk.Advance(5 * time.Millisecond)
	if !q.RunOnce() {
		t.Fatal("recurring task did not re-run after its yield")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestDueOneShotRunsBetweenRecurringPasses(t *testing.T) {
	clk := newFakeClock()
	q := NewQueue(WithClock(clk.Now))

	var order []string
	q.PostRecurringTask(func() { order = append(order, "poll") })
	q.PostOneShotTask(func() { order = append(order, "tick") }, time.Second)

	drain(q, 3)
	clk.Advance(time.Second)
	drain(q, 3)

	// the poll re-queued before the advance is older than the tick; the
	// one after it is not
	want := []string{"poll", "poll", "poll", "poll", "tick", "poll"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestEligibleTasksRunInArrivalOrder(t *testing.T) {
	clk := newFakeClock()
	q := NewQueue(WithClock(clk.Now))

	var got []int
	for i := 0; i < 4; i++ {
		i := i
		q.PostOneShotTask(func() { got = append(got, i) }, 0)
	}
	drain(q, 10)
	for i, v := range got {
		if v != i {
			t.Fatalf("got %v, want ascending", got)
		}
	}
}

func TestDoRunsOnPump(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go q.Run(ctx)

	counter := 0
	for i := 0; i < 10; i++ {
		if err := q.Do(ctx, func() error { counter++; return nil }); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if counter != 10 {
		t.Fatalf("counter = %d, want 10", counter)
	}

	wantErr := errors.New("rejected")
	if err := q.Do(ctx, func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("Do error = %v, want %v", err, wantErr)
	}
}

func TestDoHonoursContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// nothing pumps the queue
	if err := q.Do(ctx, func() error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do error = %v, want deadline exceeded", err)
	}
}

func TestDoSkipsAbandonedWork(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	if err := q.Do(ctx, func() error { ran = true; return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("Do error = %v, want context.Canceled", err)
	}
	drain(q, 10)
	if ran {
		t.Fatal("fn ran after Do returned context.Canceled")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
