package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"nexmotion-go/pkg/nmc"
)

// Config is the daemon configuration file (TOML)
type Config struct {
	Log       LogConfig       `toml:"log"`
	Device    DeviceConfig    `toml:"device"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	MQTT      MQTTConfig      `toml:"mqtt"`
	Kafka     KafkaConfig     `toml:"kafka"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`

	// Rotation size in megabytes
	MaxSize    int  `toml:"max_size"`
	MaxBackups int  `toml:"max_backups"`
	Compress   bool `toml:"compress"`
}

type DeviceConfig struct {
	Type  string `toml:"type"`
	Index int    `toml:"index"`

	// NexMotionLibConfig.ini file or directory
	Ini string `toml:"ini"`

	// Trace mode: disable, error or all
	Trace      string `toml:"trace"`
	QueueDepth int    `toml:"queue_depth"`
}

type MetricsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Address  string `toml:"address"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type TelemetryConfig struct {
	Enabled  bool          `toml:"enabled"`
	Address  string        `toml:"address"`
	Interval time.Duration `toml:"interval"`
}

type MQTTConfig struct {
	Enabled  bool          `toml:"enabled"`
	Broker   string        `toml:"broker"`
	ClientID string        `toml:"client_id"`
	Username string        `toml:"username"`
	Password string        `toml:"password"`
	QoS      int           `toml:"qos"`
	Prefix   string        `toml:"prefix"`
	Interval time.Duration `toml:"interval"`
}

type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

func DefaultConfig() *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Device:    DeviceConfig{Type: "simulator", Trace: "error"},
		Metrics:   MetricsConfig{Enabled: true, Address: ":9100"},
		Telemetry: TelemetryConfig{Enabled: true, Address: ":7125", Interval: 250 * time.Millisecond},
		MQTT:      MQTTConfig{Broker: "tcp://localhost:1883", Prefix: "nexmotion", Interval: 100 * time.Millisecond},
		Kafka:     KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "nexmotion.messages"},
	}
}

// LoadConfig reads the optional .env file, then the optional TOML file,
// then applies NMC_* environment overrides
func LoadConfig(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "load env file %s", envFile)
		}
	}

	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Errorf("%s: unknown keys %v", path, undecoded)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.Log.Level, "NMC_LOG_LEVEL")
	setString(&c.Log.Format, "NMC_LOG_FORMAT")
	setString(&c.Log.File, "NMC_LOG_FILE")
	setString(&c.Device.Type, "NMC_DEVICE_TYPE")
	setString(&c.Device.Ini, "NMC_INI_PATH")
	setString(&c.Device.Trace, "NMC_TRACE_MODE")
	setString(&c.Metrics.Address, "NMC_METRICS_ADDR")
	setString(&c.Metrics.Username, "NMC_METRICS_USER")
	setString(&c.Metrics.Password, "NMC_METRICS_PASSWORD")
	setString(&c.Telemetry.Address, "NMC_TELEMETRY_ADDR")
	setString(&c.MQTT.Broker, "NMC_MQTT_BROKER")
	setString(&c.MQTT.Username, "NMC_MQTT_USER")
	setString(&c.MQTT.Password, "NMC_MQTT_PASSWORD")
	setString(&c.Kafka.Topic, "NMC_KAFKA_TOPIC")
	if v, ok := os.LookupEnv("NMC_KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	for key, dst := range map[string]*bool{
		"NMC_METRICS_ENABLED":   &c.Metrics.Enabled,
		"NMC_TELEMETRY_ENABLED": &c.Telemetry.Enabled,
		"NMC_MQTT_ENABLED":      &c.MQTT.Enabled,
		"NMC_KAFKA_ENABLED":     &c.Kafka.Enabled,
	} {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "%s", key)
			}
			*dst = b
		}
	}
	if v, ok := os.LookupEnv("NMC_DEVICE_INDEX"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "NMC_DEVICE_INDEX")
		}
		c.Device.Index = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

// DevType maps the configured device type onto the library backend
func (c *Config) DevType() (nmc.DevType, error) {
	switch strings.ToLower(c.Device.Type) {
	case "simulator", "sim", "":
		return nmc.DevSimulator, nil
	case "ethercat":
		return nmc.DevEtherCAT, nil
	default:
		return 0, errors.Errorf("unknown device type %q", c.Device.Type)
	}
}

func (c *Config) Validate() error {
	if _, err := c.DevType(); err != nil {
		return err
	}
	if c.Device.Index < 0 {
		return errors.Errorf("device index %d is negative", c.Device.Index)
	}
	if _, err := traceMode(c.Device.Trace); err != nil {
		return err
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt enabled without broker")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errors.Errorf("mqtt qos %d not in 0..2", c.MQTT.QoS)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka enabled without brokers or topic")
	}
	return nil
}
