package device

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Poster is the part of the task queue the restarter needs.
type Poster interface {
	PostOneShotTask(fn func(), delay time.Duration)
}

// DeferredRestart reboots the device a fixed delay after it is requested, so
// the response that triggered it can still reach the client.
type DeferredRestart struct {
	q       Poster
	delay   time.Duration
	restart func()

	once sync.Once
}

// NewDeferredRestart posts restart on q delay after RestartSoon.
func NewDeferredRestart(q Poster, delay time.Duration, restart func()) *DeferredRestart {
	return &DeferredRestart{q: q, delay: delay, restart: restart}
}

// RestartSoon schedules the restart. Repeated calls share the first one.
func (r *DeferredRestart) RestartSoon() {
	r.once.Do(func() {
		log.Info().Dur("delay", r.delay).Msg("Restart scheduled")
		r.q.PostOneShotTask(func() {
			log.Info().Msg("Restarting")
			r.restart()
		}, r.delay)
	})
}
