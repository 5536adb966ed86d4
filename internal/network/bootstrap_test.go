package network

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/owie-project/owie-netd/internal/models"
	"github.com/owie-project/owie-netd/internal/wifi"
)

type fakeRadio struct {
	chipID  uint32
	mode    wifi.Mode
	power   float32
	apSSID  string
	apPass  string
	joined  []string
	host    string
	calls   []string
	apError error
}

func (r *fakeRadio) ChipID() uint32 { return r.chipID }
func (r *fakeRadio) SetOutputPower(dBm float32) {
	r.power = dBm
	r.calls = append(r.calls, "power")
}
func (r *fakeRadio) SetMode(m wifi.Mode) {
	r.mode = m
	r.calls = append(r.calls, "mode")
}
func (r *fakeRadio) SoftAP(ssid, password string) error {
	r.apSSID, r.apPass = ssid, password
	r.calls = append(r.calls, "softap")
	return r.apError
}
func (r *fakeRadio) SoftAPIP() net.IP { return net.IPv4(192, 168, 4, 1) }
func (r *fakeRadio) Begin(ssid, password string) {
	r.joined = append(r.joined, ssid+"/"+password)
	r.calls = append(r.calls, "begin")
}
func (r *fakeRadio) SetHostname(name string) { r.host = name }

type fakeDNS struct {
	started bool
	polls   int
	ip      net.IP
}

func (d *fakeDNS) Start(context.Context) { d.started = true }
func (d *fakeDNS) ProcessNextRequest() bool {
	d.polls++
	return false
}

type fakeAdv struct {
	host    string
	started bool
	updates int
}

func (a *fakeAdv) Start(context.Context) { a.started = true }
func (a *fakeAdv) Update()               { a.updates++ }

type recordingScheduler struct {
	recurring []func()
}

func (s *recordingScheduler) PostRecurringTask(fn func()) {
	s.recurring = append(s.recurring, fn)
}

func TestAPName(t *testing.T) {
	tests := []struct {
		chip uint32
		want string
	}{
		{0x0, "Owie-0000"},
		{0xA, "Owie-000A"},
		{0xBEEF, "Owie-BEEF"},
		{0x12ABCD, "Owie-ABCD"},
		{0xFFFFFFFF, "Owie-FFFF"},
	}
	for _, tt := range tests {
		if got := APName(tt.chip); got != tt.want {
			t.Fatalf("APName(%#x) = %s, want %s", tt.chip, got, tt.want)
		}
	}
}

func newBootstrap(radio *fakeRadio) (*Bootstrap, *recordingScheduler, *fakeDNS, *fakeAdv) {
	sched := &recordingScheduler{}
	dns := &fakeDNS{}
	adv := &fakeAdv{}
	b := NewBootstrap(Options{
		Radio:     radio,
		Scheduler: sched,
		NewResponder: func(ip net.IP) (Responder, error) {
			dns.ip = ip
			return dns, nil
		},
		NewAdvertiser: func(host string, ip net.IP) (Advertiser, error) {
			adv.host = host
			return adv, nil
		},
	})
	return b, sched, dns, adv
}

func TestBootstrapAPOnly(t *testing.T) {
	radio := &fakeRadio{chipID: 0x00C0FFEE}
	b, sched, dns, adv := newBootstrap(radio)

	res, err := b.Start(context.Background(), models.Settings{APSelfPassword: ""})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.StationMode || radio.mode != wifi.ModeAP {
		t.Fatalf("station = %v mode = %v, want AP only", res.StationMode, radio.mode)
	}
	if len(radio.joined) != 0 {
		t.Fatal("joined a network without a configured SSID")
	}
	if radio.apSSID != "Owie-FFEE" || radio.apPass != "" {
		t.Fatalf("soft AP = %s/%q", radio.apSSID, radio.apPass)
	}
	if radio.power != OutputPowerDBm {
		t.Fatalf("power = %v", radio.power)
	}
	if !dns.started || !dns.ip.Equal(net.IPv4(192, 168, 4, 1)) {
		t.Fatalf("dns started = %v ip = %v", dns.started, dns.ip)
	}
	if !adv.started || adv.host != HostName {
		t.Fatalf("advertiser started = %v host = %s", adv.started, adv.host)
	}
	if len(sched.recurring) != 1 {
		t.Fatalf("recurring tasks = %d, want 1", len(sched.recurring))
	}
	for i := 0; i < 3; i++ {
		sched.recurring[0]()
	}
	if dns.polls != 3 || adv.updates != 3 {
		t.Fatalf("polls = %d updates = %d, want 3 each", dns.polls, adv.updates)
	}
}

func TestBootstrapStationMode(t *testing.T) {
	radio := &fakeRadio{chipID: 0x1234}
	b, _, _, _ := newBootstrap(radio)

	settings := models.Settings{APName: "home", APPassword: "pw", APSelfPassword: "selfpass"}
	res, err := b.Start(context.Background(), settings)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !res.StationMode || radio.mode != wifi.ModeAPStation {
		t.Fatal("station mode not selected")
	}
	if len(radio.joined) != 1 || radio.joined[0] != "home/pw" {
		t.Fatalf("joined = %v", radio.joined)
	}
	if radio.host != "Owie-1234" {
		t.Fatalf("hostname = %s", radio.host)
	}
	// the AP always comes up, and before the join
	want := []string{"power", "mode", "softap", "begin"}
	for i, c := range want {
		if radio.calls[i] != c {
			t.Fatalf("calls = %v, want prefix %v", radio.calls, want)
		}
	}
	if radio.apPass != "selfpass" {
		t.Fatalf("AP password = %q", radio.apPass)
	}
}

func TestBootstrapSoftAPFailure(t *testing.T) {
	radio := &fakeRadio{apError: errors.New("no radio")}
	b, sched, dns, _ := newBootstrap(radio)
	if _, err := b.Start(context.Background(), models.Settings{}); err == nil {
		t.Fatal("expected error")
	}
	if dns.started || len(sched.recurring) != 0 {
		t.Fatal("services started without an access point")
	}
}

func TestBootstrapWithoutAdvertiser(t *testing.T) {
	radio := &fakeRadio{}
	sched := &recordingScheduler{}
	dns := &fakeDNS{}
	b := NewBootstrap(Options{
		Radio:        radio,
		Scheduler:    sched,
		NewResponder: func(net.IP) (Responder, error) { return dns, nil },
	})
	if _, err := b.Start(context.Background(), models.Settings{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.recurring[0]()
	if dns.polls != 1 {
		t.Fatalf("polls = %d", dns.polls)
	}
}
