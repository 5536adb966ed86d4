package network

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/models"
	"github.com/owie-project/owie-netd/internal/wifi"
)

const (
	// APPrefix starts every device access point name.
	APPrefix = "Owie-"
	// HostName is published over mDNS as "<HostName>.local".
	HostName = "owie"
	// OutputPowerDBm is the radio power used in normal mode.
	OutputPowerDBm = 9
)

// APName derives the device access point name from the low 16 bits of the
// chip identifier.
func APName(chipID uint32) string {
	return fmt.Sprintf("%s%04X", APPrefix, chipID&0xFFFF)
}

// StationMode reports whether the settings ask to join a network.
func StationMode(s models.Settings) bool {
	return s.StationMode()
}

// Scheduler registers background work.
type Scheduler interface {
	PostRecurringTask(fn func())
}

// Responder is the captive DNS service.
type Responder interface {
	Start(ctx context.Context)
	ProcessNextRequest() bool
}

// Advertiser is the local name service.
type Advertiser interface {
	Start(ctx context.Context)
	Update()
}

// Options wires the bootstrap to its collaborators. NewAdvertiser may be
// nil to run without name publication.
type Options struct {
	Radio         wifi.Radio
	Scheduler     Scheduler
	NewResponder  func(ip net.IP) (Responder, error)
	NewAdvertiser func(host string, ip net.IP) (Advertiser, error)
}

// Result describes the network that came up.
type Result struct {
	APName      string
	APIP        net.IP
	StationMode bool
}

// Bootstrap brings the device onto the network in normal mode.
type Bootstrap struct {
	opts Options
}

// NewBootstrap creates a bootstrap.
func NewBootstrap(opts Options) *Bootstrap {
	return &Bootstrap{opts: opts}
}

// Start hosts the access point, optionally begins the station join, starts
// captive DNS and name publication, and registers their polling as one
// recurring task. A failed station join is not retried or reported.
func (b *Bootstrap) Start(ctx context.Context, settings models.Settings) (*Result, error) {
	radio := b.opts.Radio
	radio.SetOutputPower(OutputPowerDBm)

	station := StationMode(settings)
	if station {
		radio.SetMode(wifi.ModeAPStation)
	} else {
		radio.SetMode(wifi.ModeAP)
	}

	apName := APName(radio.ChipID())
	if err := radio.SoftAP(apName, settings.APSelfPassword); err != nil {
		return nil, fmt.Errorf("start access point: %w", err)
	}
	if station {
		radio.Begin(settings.APName, settings.APPassword)
		radio.SetHostname(apName)
	}
	ip := radio.SoftAPIP()

	var adv Advertiser
	if b.opts.NewAdvertiser != nil {
		a, err := b.opts.NewAdvertiser(HostName, ip)
		if err != nil {
			log.Warn().Err(err).Msg("Name publication unavailable")
		} else {
			adv = a
			adv.Start(ctx)
		}
	}

	dns, err := b.opts.NewResponder(ip)
	if err != nil {
		return nil, fmt.Errorf("start dns: %w", err)
	}
	dns.Start(ctx)

	b.opts.Scheduler.PostRecurringTask(func() {
		dns.ProcessNextRequest()
		if adv != nil {
			adv.Update()
		}
	})

	log.Info().
		Str("ap", apName).
		Str("ip", ip.String()).
		Bool("station", station).
		Msg("Network bootstrap complete")

	return &Result{APName: apName, APIP: ip, StationMode: station}, nil
}
