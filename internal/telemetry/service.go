package telemetry

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/bms"
	"github.com/owie-project/owie-netd/internal/tasks"
)

// DefaultInterval is the broadcast cadence.
const DefaultInterval = time.Second

// TextBroadcaster delivers a text message to every connected viewer.
type TextBroadcaster interface {
	TextAll(data []byte) int
}

// BinaryBroadcaster delivers a binary message to every connected viewer.
type BinaryBroadcaster interface {
	BinaryAll(data []byte) int
}

// Sink mirrors the live streams somewhere else. Implementations must not
// block.
type Sink interface {
	PublishTelemetry(data []byte)
	PublishFrame(frame []byte)
}

// Service broadcasts a fresh snapshot of the relay once per interval for as
// long as the process runs. Nothing is cached between ticks.
type Service struct {
	relay  bms.Relay
	out    TextBroadcaster
	sinks  []Sink
	uptime func() time.Duration

	periodic *tasks.Periodic
	sent     atomic.Uint64
}

// NewService binds the broadcast to q. uptime reports time since boot.
func NewService(q *tasks.Queue, interval time.Duration, relay bms.Relay, out TextBroadcaster, uptime func() time.Duration, sinks ...Sink) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Service{relay: relay, out: out, sinks: sinks, uptime: uptime}
	s.periodic = tasks.NewPeriodic(q, interval, s.Tick)
	return s
}

// Start posts the first broadcast one interval from now. The sequence
// cannot be stopped or restarted.
func (s *Service) Start() {
	if s.periodic.Start() {
		log.Info().Msg("Telemetry broadcast started")
	}
}

// Tick computes and sends one message. Sending to zero viewers is fine.
func (s *Service) Tick() {
	msg := Snapshot(s.relay, s.uptime())
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal telemetry")
		return
	}

	viewers := s.out.TextAll(data)
	for _, sink := range s.sinks {
		sink.PublishTelemetry(data)
	}
	s.sent.Add(1)

	log.Debug().
		Int("viewers", viewers).
		Str("voltage", msg.Voltage).
		Str("uptime", msg.Uptime).
		Msg("Telemetry sent")
}

// Sent reports how many messages have been broadcast.
func (s *Service) Sent() uint64 {
	return s.sent.Load()
}

// FrameRelay forwards raw BMS frames, verbatim, to raw-data viewers.
type FrameRelay struct {
	out   BinaryBroadcaster
	sinks []Sink
}

// NewFrameRelay creates a frame relay.
func NewFrameRelay(out BinaryBroadcaster, sinks ...Sink) *FrameRelay {
	return &FrameRelay{out: out, sinks: sinks}
}

// Stream sends one frame. It matches bms.FrameHandler.
func (r *FrameRelay) Stream(frame []byte) {
	r.out.BinaryAll(frame)
	for _, sink := range r.sinks {
		sink.PublishFrame(frame)
	}
}
