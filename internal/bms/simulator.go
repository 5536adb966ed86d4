package bms

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// SimulatorConfig seeds the simulated pack.
type SimulatorConfig struct {
	Cells          int
	CellMillivolts uint16
	CurrentAmps    float32
	SOC            int8
	Serial         uint32
}

// Simulator is a Relay for hosts without a BMS link. Each Step drains or
// charges the pack a little and emits one raw frame.
type Simulator struct {
	mu      sync.Mutex
	cfg     SimulatorConfig
	cells   []uint16
	current float32
	used    int32
	regen   int32
	soc     int8
	step    uint32
	onFrame FrameHandler
}

// NewSimulator creates a simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Cells <= 0 {
		cfg.Cells = 15
	}
	if cfg.CellMillivolts == 0 {
		cfg.CellMillivolts = 3700
	}
	if cfg.SOC == 0 {
		cfg.SOC = 80
	}
	cells := make([]uint16, cfg.Cells)
	for i := range cells {
		cells[i] = cfg.CellMillivolts + uint16(i%3)
	}
	return &Simulator{cfg: cfg, cells: cells, current: cfg.CurrentAmps, soc: cfg.SOC}
}

// OnFrame registers the raw frame handler.
func (s *Simulator) OnFrame(h FrameHandler) {
	s.mu.Lock()
	s.onFrame = h
	s.mu.Unlock()
}

// Step advances the simulation by dt.
func (s *Simulator) Step(dt time.Duration) {
	s.mu.Lock()
	s.step++
	s.current = s.cfg.CurrentAmps + float32(math.Sin(float64(s.step)/10))*2
	mah := int32(math.Abs(float64(s.current)) * dt.Hours() * 1000)
	if s.current >= 0 {
		s.used += mah
	} else {
		s.regen += mah
	}
	frame := s.frameLocked()
	h := s.onFrame
	s.mu.Unlock()

	if h != nil {
		h(frame)
	}
}

// frameLocked encodes a status frame: 0xFFAA header, type, length, payload.
func (s *Simulator) frameLocked() []byte {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[0:4], s.cfg.Serial)
	binary.BigEndian.PutUint32(payload[4:8], s.step)
	frame := []byte{0xFF, 0xAA, 0x06, byte(len(payload))}
	return append(frame, payload...)
}

func (s *Simulator) TotalVoltageMillivolts() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int32
	for _, c := range s.cells {
		total += int32(c)
	}
	return total
}

func (s *Simulator) CurrentAmps() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Simulator) BMSReportedSOC() int8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soc
}

func (s *Simulator) OverriddenSOC() int8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.soc
}

func (s *Simulator) UsedChargeMah() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *Simulator) RegeneratedChargeMah() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regen
}

func (s *Simulator) CellMillivolts() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint16, len(s.cells))
	copy(out, s.cells)
	return out
}
