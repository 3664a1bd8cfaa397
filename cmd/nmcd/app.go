package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nexmotion-go/pkg/log"
	"nexmotion-go/pkg/metrics"
	"nexmotion-go/pkg/nmc"
	"nexmotion-go/pkg/telemetry"
	"nexmotion-go/pkg/trace"
)

// NewApp composes the daemon. Extra options are appended, which lets
// tests replace providers.
func NewApp(cfg *Config, opts ...fx.Option) *fx.App {
	base := []fx.Option{
		fx.Supply(cfg),
		LoggingModule,
		ControllerModule,
		MetricsModule,
		TelemetryModule,
		StreamModule,
		fx.WithLogger(func(zl *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zl.Named("fx")}
		}),
	}
	return fx.New(append(base, opts...)...)
}

var LoggingModule = fx.Module("logging",
	fx.Provide(ProvideLogger, ProvideZap),
)

var ControllerModule = fx.Module("controller",
	fx.Provide(metrics.NewMotionMetrics, ProvideLibrary, ProvideDevice),
)

var MetricsModule = fx.Module("metrics",
	fx.Invoke(InvokeMetricsServer),
)

var TelemetryModule = fx.Module("telemetry",
	fx.Invoke(InvokeTelemetryServer),
)

var StreamModule = fx.Module("stream",
	fx.Invoke(InvokeStreamer),
)

func traceMode(s string) (trace.Mode, error) {
	switch strings.ToLower(s) {
	case "disable", "off", "":
		return trace.Disable, nil
	case "error":
		return trace.Error, nil
	case "all":
		return trace.All, nil
	default:
		return trace.Disable, errors.Errorf("unknown trace mode %q", s)
	}
}

// ProvideLogger builds the component logger, rotating to a file when
// one is configured
func ProvideLogger(lc fx.Lifecycle, cfg *Config) (*log.Logger, error) {
	var lg *log.Logger
	if cfg.Log.File != "" {
		l, w, err := log.NewFileLogger("nmcd", log.RotationConfig{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   cfg.Log.Compress,
		}, true)
		if err != nil {
			return nil, errors.Wrap(err, "open log file")
		}
		lc.Append(fx.StopHook(w.Close))
		lg = l
	} else {
		lg = log.New("nmcd")
	}
	log.ConfigureFromEnv(lg)
	lg.SetLevel(log.ParseLevel(cfg.Log.Level))
	if strings.EqualFold(cfg.Log.Format, "json") {
		lg.SetFormat(log.FormatJSON)
	}
	log.SetDefaultLogger(lg)
	return lg, nil
}

// ProvideZap builds the zap logger used for call tracing and fx events
func ProvideZap(lc fx.Lifecycle, cfg *Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Log.Level))); err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zc := zap.Config{
		Level:    level,
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			MessageKey:     "M",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if strings.EqualFold(cfg.Log.Format, "json") {
		zc.Encoding = "json"
	}
	zl, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build zap logger")
	}
	lc.Append(fx.StopHook(func() { _ = zl.Sync() }))
	return zl, nil
}

func ProvideLibrary(cfg *Config, lg *log.Logger, zl *zap.Logger, mm *metrics.MotionMetrics) (*nmc.Library, error) {
	lib := nmc.NewLibrary(
		nmc.WithLogger(lg.WithPrefix("nmc")),
		nmc.WithMetrics(mm),
		nmc.WithObserver(trace.NewZapObserver(zl)),
		nmc.WithQueueDepth(cfg.Device.QueueDepth),
	)
	mode, err := traceMode(cfg.Device.Trace)
	if err != nil {
		return nil, err
	}
	if err := lib.DebugSetTraceMode(mode); err != nil {
		return nil, err
	}
	lib.SetIniPath(cfg.Device.Ini)
	return lib, nil
}

// ProvideDevice opens the configured device and shuts it down when the
// application stops
func ProvideDevice(lc fx.Lifecycle, cfg *Config, lib *nmc.Library, lg *log.Logger) (*nmc.Device, error) {
	typ, err := cfg.DevType()
	if err != nil {
		return nil, err
	}
	id, err := lib.OpenUp(typ, cfg.Device.Index)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s device %d", typ, cfg.Device.Index)
	}
	dev, err := lib.Device(id)
	if err != nil {
		return nil, err
	}
	lg.WithFields(log.Fields{
		"device": id,
		"type":   typ.String(),
		"axes":   dev.GetAxisCount(),
		"groups": dev.GetGroupCount(),
	}).Info("device in operation")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			lg.Info("shutting down device %d", id)
			return lib.Shutdown(id)
		},
	})
	return dev, nil
}

func InvokeMetricsServer(lc fx.Lifecycle, cfg *Config, mm *metrics.MotionMetrics, dev *nmc.Device, lg *log.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	mcfg := metrics.DefaultMetricsServerConfig()
	mcfg.Address = cfg.Metrics.Address
	mcfg.Username = cfg.Metrics.Username
	mcfg.Password = cfg.Metrics.Password
	mcfg.Ready = func() bool { return dev.GetState() == nmc.DeviceOperation }
	srv := metrics.NewMetricsServerWithConfig(mm, mcfg)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lg.Info("metrics server starting on %s", cfg.Metrics.Address)
			errCh := srv.StartAsync()
			go func() {
				if err := <-errCh; err != nil {
					lg.WithError(err).Error("metrics server failed")
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}

func InvokeTelemetryServer(lc fx.Lifecycle, cfg *Config, dev *nmc.Device, lg *log.Logger) {
	if !cfg.Telemetry.Enabled {
		return
	}
	srv := telemetry.New(telemetry.Config{
		Addr:     cfg.Telemetry.Address,
		Device:   dev,
		Interval: cfg.Telemetry.Interval,
		Logger:   lg.WithPrefix("telemetry"),
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			errCh := srv.StartAsync()
			go func() {
				if err := <-errCh; err != nil {
					lg.WithError(err).Error("telemetry server failed")
				}
			}()
			return nil
		},
		OnStop: srv.Stop,
	})
}

// InvokeStreamer connects the enabled sinks on start. A broker that
// cannot be reached aborts startup.
func InvokeStreamer(lc fx.Lifecycle, cfg *Config, dev *nmc.Device, lg *log.Logger) {
	if !cfg.MQTT.Enabled && !cfg.Kafka.Enabled {
		return
	}
	var st *telemetry.Streamer
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var pub telemetry.Publisher
			if cfg.MQTT.Enabled {
				p, err := telemetry.NewMQTTPublisher(telemetry.MQTTConfig{
					Broker:   cfg.MQTT.Broker,
					ClientID: cfg.MQTT.ClientID,
					Username: cfg.MQTT.Username,
					Password: cfg.MQTT.Password,
					QoS:      byte(cfg.MQTT.QoS),
				})
				if err != nil {
					return err
				}
				pub = p
			}
			var sink telemetry.MessageWriter
			if cfg.Kafka.Enabled {
				sink = telemetry.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			}
			st = telemetry.NewStreamer(dev, pub, sink, telemetry.StreamerConfig{
				Prefix:   cfg.MQTT.Prefix,
				Interval: cfg.MQTT.Interval,
				Logger:   lg.WithPrefix("stream"),
			})
			st.Start()
			lg.WithFields(log.Fields{"mqtt": cfg.MQTT.Enabled, "kafka": cfg.Kafka.Enabled}).Info("streamer started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if st == nil {
				return nil
			}
			return st.Stop()
		},
	})
}
