package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nexmotion-go/pkg/nmc"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := LoadConfig("", "")
	require.NoError(t, err)
	require.Equal(t, ":7125", cfg.Telemetry.Address)
	require.Equal(t, 250*time.Millisecond, cfg.Telemetry.Interval)
	require.False(t, cfg.MQTT.Enabled)
	typ, err := cfg.DevType()
	require.NoError(t, err)
	require.Equal(t, nmc.DevSimulator, typ)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "nmcd.toml", `
[device]
type = "ethercat"
index = 1
trace = "all"

[telemetry]
address = "127.0.0.1:8125"
interval = "500ms"

[mqtt]
enabled = true
broker = "tcp://broker:1883"
qos = 1

[kafka]
enabled = true
brokers = ["k1:9092", "k2:9092"]
topic = "cell.messages"
`)
	cfg, err := LoadConfig(path, "")
	require.NoError(t, err)
	typ, _ := cfg.DevType()
	require.Equal(t, nmc.DevEtherCAT, typ)
	require.Equal(t, 1, cfg.Device.Index)
	require.Equal(t, 500*time.Millisecond, cfg.Telemetry.Interval)
	require.Equal(t, 1, cfg.MQTT.QoS)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, ":9100", cfg.Metrics.Address, "untouched sections keep defaults")
}

func TestLoadTOMLErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "[device\n"},
		{"unknown key", "[device]\ncolour = \"red\"\n"},
		{"device type", "[device]\ntype = \"canopen\"\n"},
		{"trace mode", "[device]\ntrace = \"verbose\"\n"},
		{"qos", "[mqtt]\nqos = 3\n"},
		{"kafka topic", "[kafka]\nenabled = true\ntopic = \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "nmcd.toml", tt.data), "")
			require.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), "")
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	env := writeFile(t, "nmcd.env", "NMC_TELEMETRY_ADDR=127.0.0.1:9999\nNMC_KAFKA_BROKERS=a:1,b:2\nNMC_MQTT_ENABLED=true\n")
	t.Cleanup(func() {
		os.Unsetenv("NMC_TELEMETRY_ADDR")
		os.Unsetenv("NMC_KAFKA_BROKERS")
		os.Unsetenv("NMC_MQTT_ENABLED")
	})
	t.Setenv("NMC_DEVICE_INDEX", "2")

	cfg, err := LoadConfig("", env)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Telemetry.Address)
	require.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	require.True(t, cfg.MQTT.Enabled)
	require.Equal(t, 2, cfg.Device.Index)

	t.Setenv("NMC_METRICS_ENABLED", "maybe")
	_, err = LoadConfig("", "")
	require.Error(t, err)

	_, err = LoadConfig("", filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
}
