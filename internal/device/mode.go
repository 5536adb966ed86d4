package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// NetworkMode is the network surface selected at boot.
type NetworkMode int

const (
	Normal NetworkMode = iota
	Recovery
)

func (m NetworkMode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Recovery:
		return "recovery"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "normal" or "recovery".
func ParseMode(s string) (NetworkMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return Normal, nil
	case "recovery":
		return Recovery, nil
	default:
		return Normal, fmt.Errorf("invalid network mode: %q", s)
	}
}

// ErrAlreadyBooted is returned by every Boot call after the first.
var ErrAlreadyBooted = errors.New("device already booted")

// StartFunc brings up one network surface.
type StartFunc func(ctx context.Context) error

// Boot selects exactly one network surface for the lifetime of the process.
// The mode cannot change after the first Boot call, successful or not.
type Boot struct {
	normal   StartFunc
	recovery StartFunc

	mu     sync.Mutex
	booted bool
	mode   NetworkMode
}

// NewBoot binds the two mutually exclusive start paths.
func NewBoot(normal, recovery StartFunc) *Boot {
	return &Boot{normal: normal, recovery: recovery}
}

// Start runs the start path for mode.
func (b *Boot) Start(ctx context.Context, mode NetworkMode) error {
	b.mu.Lock()
	if b.booted {
		current := b.mode
		b.mu.Unlock()
		log.Warn().
			Str("requested", mode.String()).
			Str("active", current.String()).
			Msg("Ignoring second boot request")
		return ErrAlreadyBooted
	}
	b.booted = true
	b.mode = mode
	b.mu.Unlock()

	log.Info().Str("mode", mode.String()).Msg("Booting network")

	switch mode {
	case Normal:
		return b.normal(ctx)
	case Recovery:
		return b.recovery(ctx)
	default:
		return fmt.Errorf("unsupported network mode: %s", mode)
	}
}

// Mode reports the booted mode and whether Start has been called.
func (b *Boot) Mode() (NetworkMode, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode, b.booted
}
