package tasks

import (
	"sync/atomic"
	"time"
)

// Periodic is a self-scheduling periodic task: each run posts the next one as
// a one-shot with the same period. The period is measured from the end of the
// previous run, so scheduler load adds drift that is never corrected.
//
// A Periodic starts at most once and cannot be stopped.
type Periodic struct {
	q       *Queue
	period  time.Duration
	fn      func()
	started atomic.Bool
	ticks   atomic.Uint64
}

// NewPeriodic binds fn to q with the given period.
func NewPeriodic(q *Queue, period time.Duration, fn func()) *Periodic {
	return &Periodic{q: q, period: period, fn: fn}
}

// Start posts the first run one period from now. Later calls do nothing and
// report false.
func (p *Periodic) Start() bool {
	if !p.started.CompareAndSwap(false, true) {
		return false
	}
	p.q.PostOneShotTask(p.tick, p.period)
	return true
}

// Ticks reports how many runs have completed.
func (p *Periodic) Ticks() uint64 {
	return p.ticks.Load()
}

func (p *Periodic) tick() {
	p.fn()
	p.ticks.Add(1)
	p.q.PostOneShotTask(p.tick, p.period)
}
