package wifi

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// Mode is the radio operating mode.
type Mode int

const (
	// ModeAP hosts the device's own access point only.
	ModeAP Mode = iota
	// ModeAPStation hosts the access point and joins a network.
	ModeAPStation
)

func (m Mode) String() string {
	if m == ModeAPStation {
		return "ap+sta"
	}
	return "ap"
}

// Radio is the platform WiFi capability.
type Radio interface {
	ChipID() uint32
	SetOutputPower(dBm float32)
	SetMode(mode Mode)
	// SoftAP starts the access point. An empty password opens it.
	SoftAP(ssid, password string) error
	SoftAPIP() net.IP
	// Begin starts joining a network. It does not wait for the join and
	// failures are not reported.
	Begin(ssid, password string)
	SetHostname(name string)
}

// HostRadio stands in for the radio on a Linux host: the access point is the
// host interface that already carries APIP.
type HostRadio struct {
	chipID uint32
	apIP   net.IP

	mu       sync.Mutex
	mode     Mode
	ssid     string
	hostname string
}

// NewHostRadio creates a host radio for the given AP address.
func NewHostRadio(chipID uint32, apIP string) (*HostRadio, error) {
	ip := net.ParseIP(apIP).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid AP address: %q", apIP)
	}
	return &HostRadio{chipID: chipID, apIP: ip}, nil
}

func (r *HostRadio) ChipID() uint32 { return r.chipID }

func (r *HostRadio) SetOutputPower(dBm float32) {
	log.Debug().Float32("dbm", dBm).Msg("Radio output power")
}

func (r *HostRadio) SetMode(mode Mode) {
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
	log.Info().Str("mode", mode.String()).Msg("Radio mode")
}

func (r *HostRadio) SoftAP(ssid, password string) error {
	if len(ssid) == 0 || len(ssid) > 32 {
		return fmt.Errorf("invalid AP SSID length %d", len(ssid))
	}
	r.mu.Lock()
	r.ssid = ssid
	r.mu.Unlock()
	log.Info().
		Str("ssid", ssid).
		Bool("open", password == "").
		Str("ip", r.apIP.String()).
		Msg("Access point up")
	return nil
}

func (r *HostRadio) SoftAPIP() net.IP { return r.apIP }

func (r *HostRadio) Begin(ssid, password string) {
	log.Info().Str("ssid", ssid).Msg("Joining network")
}

func (r *HostRadio) SetHostname(name string) {
	r.mu.Lock()
	r.hostname = name
	r.mu.Unlock()
	log.Debug().Str("hostname", name).Msg("Station hostname")
}

// Mode returns the mode last set.
func (r *HostRadio) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// APSSID returns the SSID of the running access point, empty before SoftAP.
func (r *HostRadio) APSSID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ssid
}

// Hostname returns the station hostname last set.
func (r *HostRadio) Hostname() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostname
}
