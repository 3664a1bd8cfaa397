// nmcd runs one NexMotion controller device and exposes it over
// JSON-RPC/WebSocket, Prometheus metrics, MQTT and Kafka.
//
// Usage:
//
//	nmcd [-config nmcd.toml] [-ini dir] [-env .env]
//
// Options:
//
//	-config string  Daemon configuration file (TOML)
//	-ini string     NexMotionLibConfig.ini file or directory
//	-env string     Environment file loaded before the configuration
//	-log-level      Overrides [log] level
//
// Examples:
//
//	# Simulator with default ports (:7125 telemetry, :9100 metrics)
//	nmcd
//
//	# Explicit INI and broker settings from an env file
//	nmcd -ini /etc/nexmotion -env /etc/nexmotion/nmcd.env
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"nexmotion-go/pkg/nmc"
)

func main() {
	configFile := flag.String("config", "", "Daemon configuration file (TOML)")
	iniPath := flag.String("ini", "", "NexMotionLibConfig.ini file or directory")
	envFile := flag.String("env", "", "Environment file loaded before the configuration")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	version := flag.Bool("version", false, "Print the library version and exit")
	flag.Parse()

	if *version {
		fmt.Println(nmc.GetLibVersionString())
		return
	}

	cfg, err := LoadConfig(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *iniPath != "" {
		cfg.Device.Ini = *iniPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts the application and blocks until SIGINT or SIGTERM
func run(cfg *Config) error {
	app := NewApp(cfg)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	sig := <-app.Done()
	fmt.Fprintf(os.Stderr, "received %v, shutting down\n", sig)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return app.Stop(stopCtx)
}
