package main

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/api"
	"github.com/owie-project/owie-netd/internal/bms"
	"github.com/owie-project/owie-netd/internal/config"
	"github.com/owie-project/owie-netd/internal/device"
	"github.com/owie-project/owie-netd/internal/dns"
	"github.com/owie-project/owie-netd/internal/integration"
	"github.com/owie-project/owie-netd/internal/mdns"
	"github.com/owie-project/owie-netd/internal/network"
	"github.com/owie-project/owie-netd/internal/ota"
	"github.com/owie-project/owie-netd/internal/recovery"
	"github.com/owie-project/owie-netd/internal/settings"
	"github.com/owie-project/owie-netd/internal/storage"
	"github.com/owie-project/owie-netd/internal/tasks"
	"github.com/owie-project/owie-netd/internal/telemetry"
	"github.com/owie-project/owie-netd/internal/wifi"
	"github.com/owie-project/owie-netd/internal/ws"
)

const shutdownTimeout = 3 * time.Second

// app holds the long-lived pieces shared by both network modes.
type app struct {
	cfg       *config.Config
	bootTime  time.Time
	queue     *tasks.Queue
	radio     wifi.Radio
	store     storage.SettingsStore
	settings  *settings.Service
	restarter *device.DeferredRestart
	updater   *ota.Updater

	onRestart func()
	restart   atomic.Bool
	closers   []func(ctx context.Context) error
}

func newApp(cfg *config.Config, mode device.NetworkMode) (*app, error) {
	a := &app{
		cfg:      cfg,
		bootTime: time.Now(),
		queue:    tasks.NewQueue(tasks.WithRecurringYield(cfg.Scheduler.RecurringYield)),
	}

	radio, err := wifi.NewHostRadio(cfg.WiFi.ChipID, cfg.WiFi.APIP)
	if err != nil {
		return nil, err
	}
	a.radio = radio

	a.restarter = device.NewDeferredRestart(a.queue, cfg.Restart.Delay, func() {
		a.restart.Store(true)
		if a.onRestart != nil {
			a.onRestart()
		}
	})
	a.updater = ota.NewUpdater(cfg.OTA.FirmwarePath, cfg.OTA.MaxSize, a.restarter)

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	switch {
	case err != nil && mode == device.Recovery:
		log.Warn().Err(err).Msg("Settings store unavailable in recovery mode")
		return a, nil
	case err != nil:
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	a.store = store
	a.settings = settings.NewService(a.queue, store, a.restarter)
	return a, nil
}

// startNormal brings up the access point, DNS, mDNS, the web surface and
// the telemetry streams.
func (a *app) startNormal(ctx context.Context) error {
	current, err := a.settings.Load(ctx)
	if err != nil {
		return err
	}

	var advertiser func(host string, ip net.IP) (network.Advertiser, error)
	if a.cfg.MDNS.Enabled {
		advertiser = func(host string, ip net.IP) (network.Advertiser, error) {
			r, err := mdns.Listen(host, ip, a.cfg.MDNS.AnnounceInterval)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}

	bootstrap := network.NewBootstrap(network.Options{
		Radio:         a.radio,
		Scheduler:     a.queue,
		NewResponder:  a.newResponder,
		NewAdvertiser: advertiser,
	})
	res, err := bootstrap.Start(ctx, current)
	if err != nil {
		return err
	}

	sinks := a.mirrors(res.APName)

	socket := ws.NewHub("telemetry")
	raw := ws.NewHub("rawdata")
	a.onClose(func(context.Context) error {
		socket.CloseAll()
		raw.CloseAll()
		return nil
	})

	serial := a.cfg.BMS.Serial
	if current.BMSSerial != 0 {
		serial = current.BMSSerial
	}
	relay := bms.NewSimulator(bms.SimulatorConfig{
		Cells:          a.cfg.BMS.Cells,
		CellMillivolts: a.cfg.BMS.CellMillivolts,
		CurrentAmps:    a.cfg.BMS.CurrentAmps,
		SOC:            a.cfg.BMS.SOC,
		Serial:         serial,
	})
	relay.OnFrame(telemetry.NewFrameRelay(raw, sinks...).Stream)
	frameInterval := a.cfg.BMS.FrameInterval
	if frameInterval > 0 {
		tasks.NewPeriodic(a.queue, frameInterval, func() { relay.Step(frameInterval) }).Start()
	}

	web := api.NewWebServer(api.Options{
		Settings:  a.settings,
		APIP:      res.APIP,
		Telemetry: socket,
		RawData:   raw,
		Updater:   a.updater,
	})
	if err := web.Start(a.cfg.HTTP.Addr); err != nil {
		return err
	}
	a.onClose(web.Shutdown)

	telemetry.NewService(a.queue, a.cfg.Telemetry.Interval, relay, socket, a.uptime, sinks...).Start()
	return nil
}

// startRecovery brings up the open recovery access point with the firmware
// updater and nothing else. Settings are loaded only for shutdown
// accounting; a broken store must not keep recovery from starting.
func (a *app) startRecovery(ctx context.Context) error {
	if a.settings != nil {
		if _, err := a.settings.Load(ctx); err != nil {
			log.Warn().Err(err).Msg("Settings unavailable in recovery mode")
			a.settings = nil
		}
	}

	m := recovery.New(recovery.Options{
		Radio:        a.radio,
		Scheduler:    a.queue,
		NewResponder: a.newResponder,
		Updater:      a.updater,
	})
	if err := m.Start(ctx, a.cfg.HTTP.Addr); err != nil {
		return err
	}
	a.onClose(m.Shutdown)
	return nil
}

func (a *app) newResponder(ip net.IP) (network.Responder, error) {
	srv, err := dns.Listen(a.cfg.DNS.Addr, ip)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// mirrors connects the optional NATS and MQTT telemetry mirrors. A broker
// that cannot be reached is logged and skipped.
func (a *app) mirrors(deviceName string) []telemetry.Sink {
	var sinks []telemetry.Sink

	if a.cfg.NATS.URL != "" {
		nc, err := integration.ConnectNATS(a.cfg.NATS, "owie-"+deviceName)
		if err != nil {
			log.Warn().Err(err).Msg("NATS mirror disabled")
		} else {
			a.onClose(func(context.Context) error {
				nc.Close()
				return nil
			})
			sink := integration.NewNATSSink(nc, a.cfg.NATS.SubjectPrefix, deviceName)
			subject, _ := sink.Subjects()
			log.Info().Str("subject", subject).Msg("NATS mirror enabled")
			sinks = append(sinks, sink)
		}
	}

	if a.cfg.MQTT.Broker != "" {
		client, err := integration.ConnectMQTT(a.cfg.MQTT, deviceName)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT mirror disabled")
		} else {
			a.onClose(func(context.Context) error {
				client.Disconnect(250)
				return nil
			})
			sink := integration.NewMQTTSink(client, a.cfg.MQTT.TopicPrefix, deviceName, a.cfg.MQTT.QoS)
			topic, _ := sink.Topics()
			log.Info().Str("topic", topic).Msg("MQTT mirror enabled")
			sinks = append(sinks, sink)
		}
	}

	return sinks
}

// recordGracefulShutdown bumps the shutdown counter. It needs the pump to
// still be running.
func (a *app) recordGracefulShutdown(ctx context.Context) {
	if a.settings == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := a.settings.RecordGracefulShutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to record graceful shutdown")
	}
}

func (a *app) uptime() time.Duration {
	return time.Since(a.bootTime)
}

func (a *app) restartRequested() bool {
	return a.restart.Load()
}

func (a *app) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close releases everything in reverse start order.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("Shutdown step failed")
		}
	}
	a.closers = nil
	if a.store != nil {
		a.store.Close()
	}
}
