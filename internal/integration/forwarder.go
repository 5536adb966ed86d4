package integration

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/config"
)

// natsPublisher is the part of *nats.Conn the mirror needs.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// mqttPublisher is the part of mqtt.Client the mirror needs.
type mqttPublisher interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// NATSSink mirrors telemetry onto NATS subjects <prefix>.<device>.telemetry
// and <prefix>.<device>.raw. Publishing never waits for the server.
type NATSSink struct {
	nc        natsPublisher
	telemetry string
	raw       string
}

// NewNATSSink creates a NATS mirror for one device.
func NewNATSSink(nc *nats.Conn, prefix, device string) *NATSSink {
	return newNATSSink(nc, prefix, device)
}

func newNATSSink(nc natsPublisher, prefix, device string) *NATSSink {
	return &NATSSink{
		nc:        nc,
		telemetry: fmt.Sprintf("%s.%s.telemetry", prefix, device),
		raw:       fmt.Sprintf("%s.%s.raw", prefix, device),
	}
}

// Subjects returns the telemetry and raw subjects.
func (s *NATSSink) Subjects() (telemetry, raw string) { return s.telemetry, s.raw }

// PublishTelemetry implements telemetry.Sink.
func (s *NATSSink) PublishTelemetry(data []byte) { s.publish(s.telemetry, data) }

// PublishFrame implements telemetry.Sink.
func (s *NATSSink) PublishFrame(data []byte) { s.publish(s.raw, data) }

func (s *NATSSink) publish(subject string, data []byte) {
	if err := s.nc.Publish(subject, data); err != nil {
		log.Debug().Err(err).Str("subject", subject).Msg("NATS mirror publish failed")
	}
}

// MQTTSink mirrors telemetry onto <prefix>/<device>/telemetry and
// <prefix>/<device>/raw. Messages are dropped while the broker is away.
type MQTTSink struct {
	client    mqttPublisher
	qos       byte
	telemetry string
	raw       string
}

// NewMQTTSink creates an MQTT mirror for one device.
func NewMQTTSink(client mqtt.Client, prefix, device string, qos byte) *MQTTSink {
	return newMQTTSink(client, prefix, device, qos)
}

func newMQTTSink(client mqttPublisher, prefix, device string, qos byte) *MQTTSink {
	return &MQTTSink{
		client:    client,
		qos:       qos,
		telemetry: fmt.Sprintf("%s/%s/telemetry", prefix, device),
		raw:       fmt.Sprintf("%s/%s/raw", prefix, device),
	}
}

// Topics returns the telemetry and raw topics.
func (s *MQTTSink) Topics() (telemetry, raw string) { return s.telemetry, s.raw }

// PublishTelemetry implements telemetry.Sink.
func (s *MQTTSink) PublishTelemetry(data []byte) { s.publish(s.telemetry, data) }

// PublishFrame implements telemetry.Sink.
func (s *MQTTSink) PublishFrame(data []byte) { s.publish(s.raw, data) }

func (s *MQTTSink) publish(topic string, data []byte) {
	if !s.client.IsConnectionOpen() {
		return
	}
	// the token is not awaited; the pump must never block on the broker
	s.client.Publish(topic, s.qos, false, data)
}

// ConnectNATS dials the configured NATS server.
func ConnectNATS(cfg config.NATSConfig, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.UserInfo(cfg.Username, cfg.Password),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// ConnectMQTT connects to the configured broker. The client keeps retrying
// in the background if the first attempt does not complete in time.
func ConnectMQTT(cfg config.MQTTConfig, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}
