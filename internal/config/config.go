package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Mode      string          `yaml:"mode"`
	HTTP      HTTPConfig      `yaml:"http"`
	DNS       DNSConfig       `yaml:"dns"`
	MDNS      MDNSConfig      `yaml:"mdns"`
	WiFi      WiFiConfig      `yaml:"wifi"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Restart   RestartConfig   `yaml:"restart"`
	Storage   StorageConfig   `yaml:"storage"`
	BMS       BMSConfig       `yaml:"bms"`
	OTA       OTAConfig       `yaml:"ota"`
	NATS      NATSConfig      `yaml:"nats"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// HTTPConfig is the web server bind address.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DNSConfig is the captive DNS bind address.
type DNSConfig struct {
	Addr string `yaml:"addr"`
}

// MDNSConfig controls local name publication.
type MDNSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AnnounceInterval time.Duration `yaml:"announce_interval"`
}

// WiFiConfig describes the host radio.
type WiFiConfig struct {
	APIP   string `yaml:"ap_ip"`
	ChipID uint32 `yaml:"chip_id"`
}

// SchedulerConfig tunes the task pump.
type SchedulerConfig struct {
	RecurringYield time.Duration `yaml:"recurring_yield"`
}

// TelemetryConfig sets the broadcast cadence.
type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// RestartConfig sets how long a settings change waits before rebooting.
type RestartConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// StorageConfig selects the settings store.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// BMSConfig drives the simulated relay.
type BMSConfig struct {
	Cells          int           `yaml:"cells"`
	CellMillivolts uint16        `yaml:"cell_millivolts"`
	CurrentAmps    float32       `yaml:"current_amps"`
	SOC            int8          `yaml:"soc"`
	Serial         uint32        `yaml:"serial"`
	FrameInterval  time.Duration `yaml:"frame_interval"`
}

// OTAConfig is where uploaded firmware lands.
type OTAConfig struct {
	FirmwarePath string `yaml:"firmware_path"`
	MaxSize      int64  `yaml:"max_size"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// MQTTConfig represents MQTT configuration
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Name: "owie-netd", Version: "0.0.2"},
		Mode:   "normal",
		HTTP:   HTTPConfig{Addr: ":80"},
		DNS:    DNSConfig{Addr: ":53"},
		MDNS:   MDNSConfig{Enabled: true, AnnounceInterval: time.Minute},
		WiFi:   WiFiConfig{APIP: "192.168.4.1"},
		Scheduler: SchedulerConfig{
			RecurringYield: time.Millisecond,
		},
		Telemetry: TelemetryConfig{Interval: time.Second},
		Restart:   RestartConfig{Delay: time.Second},
		Storage:   StorageConfig{Driver: "file", Path: "/var/lib/owie/settings.yml"},
		BMS: BMSConfig{
			Cells:          15,
			CellMillivolts: 3700,
			CurrentAmps:    2,
			SOC:            80,
			FrameInterval:  250 * time.Millisecond,
		},
		OTA: OTAConfig{FirmwarePath: "/var/lib/owie/firmware.bin", MaxSize: 4 << 20},
		NATS: NATSConfig{
			SubjectPrefix:     "owie",
			MaxReconnects:     -1,
			ReconnectInterval: 2 * time.Second,
		},
		MQTT: MQTTConfig{TopicPrefix: "owie"},
		Log:  LogConfig{Level: "info", Format: "console"},
	}
}

// Load loads configuration from file. A missing file yields the defaults;
// fields absent from the file keep their default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if mode := os.Getenv("OWIE_MODE"); mode != "" {
		c.Mode = mode
	}

	if addr := os.Getenv("OWIE_HTTP_ADDR"); addr != "" {
		c.HTTP.Addr = addr
	}

	if path := os.Getenv("OWIE_SETTINGS_PATH"); path != "" {
		c.Storage.Path = path
	}

	if chip := os.Getenv("OWIE_CHIP_ID"); chip != "" {
		if v, err := strconv.ParseUint(chip, 0, 32); err == nil {
			c.WiFi.ChipID = uint32(v)
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Storage.Driver = "postgres"
		c.Storage.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case "normal", "recovery":
	default:
		return fmt.Errorf("mode must be normal or recovery, got %q", c.Mode)
	}
	switch c.Storage.Driver {
	case "file":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the file driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Telemetry.Interval <= 0 {
		return errors.New("telemetry.interval must be positive")
	}
	if c.Restart.Delay < 0 {
		return errors.New("restart.delay must not be negative")
	}
	if c.Scheduler.RecurringYield < 0 {
		return errors.New("scheduler.recurring_yield must not be negative")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// PrintConfigSummary prints a short human readable summary
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== Owie Network Configuration ===\n")
	fmt.Printf("Server: %s v%s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("Mode: %s\n", c.Mode)
	fmt.Printf("HTTP: %s  DNS: %s  mDNS: %v\n", c.HTTP.Addr, c.DNS.Addr, c.MDNS.Enabled)
	fmt.Printf("AP IP: %s  Chip ID: %#x\n", c.WiFi.APIP, c.WiFi.ChipID)
	fmt.Printf("Telemetry interval: %s  Restart delay: %s\n", c.Telemetry.Interval, c.Restart.Delay)
	switch c.Storage.Driver {
	case "postgres":
		fmt.Printf("Settings: postgres\n")
	default:
		fmt.Printf("Settings: %s\n", c.Storage.Path)
	}
	if c.NATS.URL != "" {
		fmt.Printf("NATS mirror: %s (%s.*)\n", c.NATS.URL, c.NATS.SubjectPrefix)
	}
	if c.MQTT.Broker != "" {
		fmt.Printf("MQTT mirror: %s (%s/*)\n", c.MQTT.Broker, c.MQTT.TopicPrefix)
	}
	fmt.Printf("==================================\n")
}
