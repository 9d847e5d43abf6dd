package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cyn4676086/multi-camera-sync/clocksync"
	"github.com/cyn4676086/multi-camera-sync/coordinator"
	"github.com/cyn4676086/multi-camera-sync/eventbus"
	"github.com/cyn4676086/multi-camera-sync/internal/config"
	"github.com/cyn4676086/multi-camera-sync/internal/health"
	"github.com/cyn4676086/multi-camera-sync/internal/metrics"
	"github.com/cyn4676086/multi-camera-sync/sensor/synthetic"
	"github.com/cyn4676086/multi-camera-sync/transport"
	"github.com/cyn4676086/multi-camera-sync/trigger"
)

const defaultConfigPath = "config/multi-camera-sync.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (empty: environment only)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "multi-camera-sync: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "multi-camera-sync: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	slog.Info("starting multi-camera-sync",
		"config", *configPath,
		"debug", *debug,
	)

	if err := run(cfg); err != nil {
		slog.Error("service error", "error", err)
		closeLog()
		os.Exit(1)
	}
	slog.Info("multi-camera-sync stopped successfully")
}

func setupLogger(cfg *config.Config, debug bool) (func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(h))
	return closeFn, nil
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	busCfg := eventbus.Config{
		QueueSize:        cfg.Bus.QueueSize,
		InboxSize:        cfg.Bus.InboxSize,
		ForwardQueueSize: cfg.Bus.ForwardQueueSize,
	}
	if cfg.MQTT.Broker != "" {
		bridge, err := eventbus.NewMQTTBridge(eventbus.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err != nil {
			// records stay local
			slog.Warn("mqtt bridge disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			busCfg.Forwarder = bridge
		}
	}
	bus := eventbus.New(busCfg)
	defer bus.Close()
	metrics.RegisterBus(promReg, bus)

	registry := trigger.NewRegistry(bus)
	metrics.RegisterTriggers(promReg, registry)

	coord := coordinator.New(registry, bus,
		coordinator.WithWarmup(cfg.Warmup()),
		coordinator.WithRestartPause(time.Duration(cfg.RestartPauseMS)*time.Millisecond),
		coordinator.WithLinkOptions(
			transport.WithObserver(m),
			transport.WithClockOptions(clocksync.WithObserver(m.ObserveClock)),
		),
	)
	if err := coord.SetLink(linkConfig(cfg.Link)); err != nil {
		return err
	}

	if sc := cfg.Sensor; sc != nil {
		adapter := synthetic.New(synthetic.Config{PollHz: sc.RateHz, Rows: sc.Rows, Cols: sc.Cols}, registry, bus)
		adapter.SetParams(sc.Params)
		coord.UseSensor(adapter)
	}

	var hs *health.Server
	if cfg.HealthAddr != "" {
		hs = health.New(cfg.HealthAddr, coord, promReg)
		if err := hs.Start(); err != nil {
			return fmt.Errorf("health server: %w", err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- coord.Start(ctx)
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case runErr = <-errChan:
		if errors.Is(runErr, coordinator.ErrSensorInit) {
			// the link keeps running without the sensor
			slog.Error("sensor unavailable, continuing with link only", "error", runErr)
			runErr = nil
		}
		if runErr != nil {
			slog.Error("coordinator failed to start", "error", runErr)
			break
		}
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}

	timeout := time.Duration(cfg.ShutdownTimeoutS) * time.Second
	slog.Info("shutting down gracefully", "timeout", timeout)

	if err := coord.Stop(); err != nil {
		slog.Error("coordinator stop failed", "error", err)
	}
	if hs != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			slog.Error("health server shutdown failed", "error", err)
		}
	}
	return runErr
}

func linkConfig(l config.LinkConfig) transport.Config {
	var c transport.Config
	if l.Serial != nil {
		c = transport.SerialConfig(l.Serial.Device, l.Serial.Baud)
	} else {
		c = transport.NetConfig(l.Net.IP, l.Net.Port)
		c.LocalPort = l.Net.LocalPort
	}
	c.BeaconInterval = time.Duration(l.BeaconIntervalMS) * time.Millisecond
	c.ReadTimeout = time.Duration(l.ReadTimeoutMS) * time.Millisecond
	return c
}
